package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"salesflow/core/database"
	"salesflow/modules/integration/entity"
)

type IntegrationRepository interface {
	Create(ctx context.Context, integ *entity.CalendarIntegration) (*entity.CalendarIntegration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error)
	GetActiveByUserAndProvider(ctx context.Context, companyID, userID uuid.UUID, provider string) (*entity.CalendarIntegration, error)
	GetActiveByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.CalendarIntegration, error)
	GetAllActive(ctx context.Context) ([]entity.CalendarIntegration, error)
	GetBySubscriptionID(ctx context.Context, provider, subscriptionID string) (*entity.CalendarIntegration, error)
	GetByAccount(ctx context.Context, provider, accountID, accountEmail string) (*entity.CalendarIntegration, error)
	GetByParticipantEmail(ctx context.Context, provider, email string) (*entity.CalendarIntegration, error)
	UpdateTokens(ctx context.Context, integ *entity.CalendarIntegration) error
	UpdateWebhookSubscription(ctx context.Context, id uuid.UUID, subscriptionID *string, expiresAt *time.Time) error
	UpdateSyncState(ctx context.Context, id uuid.UUID, cursor *string, syncedAt time.Time, syncErr *string) error
	MarkNeedsReauth(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type integrationRepository struct {
	db database.IDatabase
}

func NewIntegrationRepository(db database.IDatabase) IntegrationRepository {
	return &integrationRepository{db: db}
}

const integrationColumns = `
	id, company_id, user_id, provider, access_token, refresh_token, token_expires_at,
	provider_account_email, provider_account_id, webhook_subscription_id, webhook_expires_at,
	sync_cursor, is_active, needs_reauth, last_synced_at, last_sync_error, created_at, updated_at
`

func (r *integrationRepository) Create(ctx context.Context, integ *entity.CalendarIntegration) (*entity.CalendarIntegration, error) {
	query := `
		INSERT INTO calendar_integrations (
			company_id, user_id, provider, access_token, refresh_token, token_expires_at,
			provider_account_email, provider_account_id, webhook_subscription_id, webhook_expires_at,
			sync_cursor, is_active, needs_reauth
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		integ.CompanyID, integ.UserID, integ.Provider, integ.AccessToken, integ.RefreshToken,
		integ.TokenExpiresAt, integ.ProviderAccountEmail, integ.ProviderAccountID,
		integ.WebhookSubscriptionID, integ.WebhookExpiresAt, integ.SyncCursor,
		integ.IsActive, integ.NeedsReauth,
	).Scan(&integ.ID, &integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return integ, nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE id = $1`
	if err := r.db.GetContext(ctx, &integ, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) GetActiveByUserAndProvider(ctx context.Context, companyID, userID uuid.UUID, provider string) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE company_id = $1 AND user_id = $2 AND provider = $3 AND is_active = true
	`
	if err := r.db.GetContext(ctx, &integ, query, companyID, userID, provider); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) GetActiveByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.CalendarIntegration, error) {
	var integrations []entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE company_id = $1 AND is_active = true
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &integrations, query, companyID); err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) GetAllActive(ctx context.Context) ([]entity.CalendarIntegration, error) {
	var integrations []entity.CalendarIntegration
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE is_active = true`
	if err := r.db.SelectContext(ctx, &integrations, query); err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) GetBySubscriptionID(ctx context.Context, provider, subscriptionID string) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE provider = $1 AND webhook_subscription_id = $2 AND is_active = true
	`
	if err := r.db.GetContext(ctx, &integ, query, provider, subscriptionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &integ, nil
}

// GetByAccount matches on the provider's account id first, then the account
// email.
func (r *integrationRepository) GetByAccount(ctx context.Context, provider, accountID, accountEmail string) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE provider = $1 AND is_active = true
		AND (($2 != '' AND provider_account_id = $2) OR ($3 != '' AND provider_account_email = $3))
		ORDER BY (provider_account_id = $2) DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &integ, query, provider, accountID, accountEmail); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &integ, nil
}

// GetByParticipantEmail is the last-resort webhook match: an event
// participant's email equals a stored account email. Handles webhooks created
// under a different identity than the event owner.
func (r *integrationRepository) GetByParticipantEmail(ctx context.Context, provider, email string) (*entity.CalendarIntegration, error) {
	var integ entity.CalendarIntegration
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE provider = $1 AND provider_account_email = $2 AND is_active = true
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &integ, query, provider, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) UpdateTokens(ctx context.Context, integ *entity.CalendarIntegration) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, needs_reauth = false, updated_at = NOW()
		WHERE id = $4
	`
	return r.db.ExecContext(ctx, query, integ.AccessToken, integ.RefreshToken, integ.TokenExpiresAt, integ.ID)
}

func (r *integrationRepository) UpdateWebhookSubscription(ctx context.Context, id uuid.UUID, subscriptionID *string, expiresAt *time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET webhook_subscription_id = $1, webhook_expires_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	return r.db.ExecContext(ctx, query, subscriptionID, expiresAt, id)
}

func (r *integrationRepository) UpdateSyncState(ctx context.Context, id uuid.UUID, cursor *string, syncedAt time.Time, syncErr *string) error {
	query := `
		UPDATE calendar_integrations
		SET sync_cursor = COALESCE($1, sync_cursor), last_synced_at = $2, last_sync_error = $3, updated_at = NOW()
		WHERE id = $4
	`
	return r.db.ExecContext(ctx, query, cursor, syncedAt, syncErr, id)
}

func (r *integrationRepository) MarkNeedsReauth(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE calendar_integrations SET needs_reauth = true, updated_at = NOW() WHERE id = $1`
	return r.db.ExecContext(ctx, query, id)
}

// Deactivate soft-deletes: tokens are cleared, the row stays for audit.
func (r *integrationRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE calendar_integrations
		SET is_active = false, access_token = '', refresh_token = NULL,
			webhook_subscription_id = NULL, webhook_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.db.ExecContext(ctx, query, id)
}
