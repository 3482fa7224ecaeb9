package repository

import (
	"context"
	"database/sql"
	"time"

	"salesflow/core/database"
	"salesflow/core/logger"
	"salesflow/modules/integration/entity"
)

type OAuthStateRepository interface {
	Save(ctx context.Context, nonce string, expiresAt time.Time) error
	Get(ctx context.Context, nonce string) (*entity.OAuthState, error)
	Delete(ctx context.Context, nonce string) error
	CleanupExpired(ctx context.Context) error
}

type oauthStateRepository struct {
	db database.IDatabase
}

func NewOAuthStateRepository(db database.IDatabase) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

func (r *oauthStateRepository) Save(ctx context.Context, nonce string, expiresAt time.Time) error {
	query := `
		INSERT INTO oauth_states (id, nonce, expires_at, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, NOW(), NOW())
		ON CONFLICT (nonce)
		DO UPDATE SET expires_at = $2, updated_at = NOW()
	`
	if err := r.db.ExecContext(ctx, query, nonce, expiresAt); err != nil {
		logger.Error("OAuthStateRepository:Save:Error", "error", err)
		return err
	}
	return nil
}

func (r *oauthStateRepository) Get(ctx context.Context, nonce string) (*entity.OAuthState, error) {
	var state entity.OAuthState
	query := `
		SELECT id, nonce, expires_at, created_at, updated_at
		FROM oauth_states
		WHERE nonce = $1 AND expires_at > NOW()
	`
	if err := r.db.GetContext(ctx, &state, query, nonce); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("OAuthStateRepository:Get:Error", "error", err)
		return nil, err
	}
	return &state, nil
}

func (r *oauthStateRepository) Delete(ctx context.Context, nonce string) error {
	return r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE nonce = $1`, nonce)
}

func (r *oauthStateRepository) CleanupExpired(ctx context.Context) error {
	return r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
}
