package entity

import (
	"time"

	"github.com/google/uuid"

	"salesflow/core/entity"
)

// CalendarIntegration binds one (company, user) to one external calendar
// provider. At most one active row exists per (company, user, provider);
// reconnecting deactivates the old row and inserts a new one. Disconnect is a
// soft delete that clears tokens but keeps the row for audit history.
type CalendarIntegration struct {
	entity.BaseEntity
	CompanyID             uuid.UUID  `db:"company_id" json:"company_id"`
	UserID                uuid.UUID  `db:"user_id" json:"user_id"`
	Provider              string     `db:"provider" json:"provider"`
	AccessToken           string     `db:"access_token" json:"-"`
	RefreshToken          *string    `db:"refresh_token" json:"-"`
	TokenExpiresAt        *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	ProviderAccountEmail  string     `db:"provider_account_email" json:"provider_account_email"`
	ProviderAccountID     string     `db:"provider_account_id" json:"provider_account_id"`
	WebhookSubscriptionID *string    `db:"webhook_subscription_id" json:"webhook_subscription_id,omitempty"`
	WebhookExpiresAt      *time.Time `db:"webhook_expires_at" json:"webhook_expires_at,omitempty"`
	// SyncCursor is the provider's incremental sync token where supported
	// (Google). Empty means the next run does a bounded window fetch.
	SyncCursor    *string    `db:"sync_cursor" json:"-"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	NeedsReauth   bool       `db:"needs_reauth" json:"needs_reauth"`
	LastSyncedAt  *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncError *string    `db:"last_sync_error" json:"last_sync_error,omitempty"`
}

func (CalendarIntegration) TableName() string {
	return "calendar_integrations"
}

// TokenExpired reports whether the access token needs a refresh, with leeway.
func (i *CalendarIntegration) TokenExpired(leeway time.Duration) bool {
	if i.TokenExpiresAt == nil {
		// Non-refreshable tokens (Calendly PAT) never expire from our side.
		return false
	}
	return time.Now().After(i.TokenExpiresAt.Add(-leeway))
}
