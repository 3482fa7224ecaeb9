package constants

import "time"

// Provider names are the CalendarIntegration provider enum values.
const (
	ProviderGoogleCalendar   = "google_calendar"
	ProviderMicrosoftOutlook = "microsoft_outlook"
	ProviderCalendly         = "calendly"
)

// Providers is the closed variant set.
var Providers = []string{ProviderGoogleCalendar, ProviderMicrosoftOutlook, ProviderCalendly}

func IsValidProvider(p string) bool {
	for _, v := range Providers {
		if v == p {
			return true
		}
	}
	return false
}

// Timeouts and retry policy for provider HTTP calls.
const (
	DefaultTimeout       = 15 * time.Second
	ProviderHTTPTimeout  = 12 * time.Second
	SyncRetryBaseBackoff = 1 * time.Second
	OAuthStateTTL        = 10 * time.Minute
	TokenRefreshLeeway   = 5 * time.Minute
)

// Database pool settings.
const (
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
	DatabaseSSLMode         = "disable"
)

// Redis key prefixes.
const (
	RedisKeyWebhookDelivery = "webhook:delivery:"
	RedisKeySyncLock        = "sync:lock:"
)

const (
	WebhookDeliveryDedupTTL = 24 * time.Hour
	SyncLockTTL             = 2 * time.Minute
)

// Asynq task types.
const (
	TaskSyncRun           = "sync:run"
	TaskSyncEnqueueAll    = "sync:enqueue_all"
	TaskWebhookRenewal    = "webhook:renew_subscriptions"
	QueueDefault          = "default"
	QueueConcurrency      = 10
	SyncIntervalMinutes   = 15
	WebhookRenewalLeadDay = 1
)
