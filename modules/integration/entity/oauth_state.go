package entity

import (
	"time"

	"salesflow/core/entity"
)

// OAuthState is a one-time CSRF nonce stored while an OAuth connect flow is
// in flight. The nonce is embedded in the base64 state parameter alongside
// the tenant payload and validated on callback.
type OAuthState struct {
	entity.BaseEntity
	Nonce     string    `db:"nonce"`
	ExpiresAt time.Time `db:"expires_at"`
}
