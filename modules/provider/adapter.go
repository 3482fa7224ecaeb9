package provider

import (
	"context"
	"net/http"
	"time"

	"salesflow/core/errors"
	integrationEntity "salesflow/modules/integration/entity"
)

// TokenSet is the credential material returned by an auth-code exchange or a
// refresh. ExpiresAt is nil for non-expiring tokens (Calendly PAT).
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// AccountProfile identifies the provider account an integration is bound to.
type AccountProfile struct {
	AccountID string
	Email     string
	Name      string
}

// ProviderEvent is the provider-agnostic shape an adapter normalizes remote
// events into. Revision is the provider's etag/changeKey; empty when the
// provider omits one.
type ProviderEvent struct {
	ExternalID        string
	Title             string
	Description       string
	Location          string
	StartTime         time.Time
	EndTime           time.Time
	AllDay            bool
	Cancelled         bool
	Revision          string
	UpdatedAt         time.Time
	ParticipantEmails []string
}

// ListQuery selects either incremental fetch (SyncCursor, where the provider
// supports one) or a bounded time window.
type ListQuery struct {
	SyncCursor  string
	WindowStart time.Time
	WindowEnd   time.Time
}

// ListResult carries the fetched events plus the next incremental cursor.
// CursorInvalidated is set when the provider rejected the stored cursor
// (Google 410); the caller must fall back to a window fetch.
type ListResult struct {
	Events            []ProviderEvent
	NextCursor        string
	CursorInvalidated bool
}

// NormalizedChange is one parsed webhook notification. Event is the inline
// payload when the provider delivers one (Calendly); otherwise ExternalID
// names the changed event to fetch, and when even that is absent (Google push
// channels carry no body) the caller falls back to an incremental fetch.
type NormalizedChange struct {
	DeliveryID        string
	SubscriptionID    string
	ExternalID        string
	Cancelled         bool
	Event             *ProviderEvent
	AccountEmail      string
	AccountID         string
	ParticipantEmails []string
}

// CalendarAdapter is the per-provider contract. All provider-specific
// knowledge (auth flow, event shape, webhook scheme, error shapes) lives
// behind this interface; errors cross it already classified into the
// application taxonomy (AuthExpired / ProviderUnavailable / ...).
type CalendarAdapter interface {
	Provider() string

	ExchangeAuthCode(ctx context.Context, code string) (*TokenSet, *AccountProfile, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenSet, error)

	ListEvents(ctx context.Context, integ *integrationEntity.CalendarIntegration, q ListQuery) (*ListResult, error)
	GetEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) (*ProviderEvent, error)

	// CreateEvent pushes an internally created event to the provider and
	// returns its external id.
	CreateEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, ev *ProviderEvent) (string, error)
	// CancelEvent is best-effort: local state is authoritative, a remote
	// failure is reported as a warning, never as an error.
	CancelEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, externalID string) *errors.Warning

	// CreateWebhookSubscription is best-effort; on failure sync degrades to
	// polling-only and the warning is surfaced to the caller.
	CreateWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration, callbackURL string) (subscriptionID string, expiresAt *time.Time, warn *errors.Warning)
	DeleteWebhookSubscription(ctx context.Context, integ *integrationEntity.CalendarIntegration) *errors.Warning

	// VerifyWebhookSignature checks the provider's signing scheme against the
	// configured secret using a constant-time comparison. Callers skip it when
	// no secret is configured.
	VerifyWebhookSignature(body []byte, headers http.Header, secret string) error
	ParseWebhookPayload(body []byte, headers http.Header) (*NormalizedChange, error)
}
