package dto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ConnectState is the payload carried through the OAuth round-trip as a
// base64-encoded JSON state parameter. Nonce is validated against the
// oauth_states table on callback (one-time use).
type ConnectState struct {
	UserID    uuid.UUID `json:"user_id"`
	CompanyID uuid.UUID `json:"company_id"`
	Provider  string    `json:"provider"`
	ReturnTo  string    `json:"return_to"`
	Nonce     string    `json:"nonce"`
}

func (s ConnectState) Encode() string {
	b, _ := json.Marshal(s)
	return base64.URLEncoding.EncodeToString(b)
}

func DecodeConnectState(raw string) (*ConnectState, error) {
	b, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	var s ConnectState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &s, nil
}

// IntegrationResponse is the client-facing view of an integration. Tokens
// never leave the service layer.
type IntegrationResponse struct {
	ID                   string  `json:"id"`
	Provider             string  `json:"provider"`
	ProviderAccountEmail string  `json:"provider_account_email"`
	IsActive             bool    `json:"is_active"`
	NeedsReauth          bool    `json:"needs_reauth"`
	WebhookActive        bool    `json:"webhook_active"`
	SyncMode             string  `json:"sync_mode"` // "push+poll" | "polling_only"
	LastSyncedAt         *string `json:"last_synced_at,omitempty"`
	LastSyncError        *string `json:"last_sync_error,omitempty"`
	ConnectedAt          string  `json:"connected_at"`
}

type IntegrationListResponse struct {
	Integrations []IntegrationResponse `json:"integrations"`
}

type ConnectURLResponse struct {
	AuthURL string `json:"auth_url"`
}
