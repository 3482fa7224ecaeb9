package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/core/utils"
	"salesflow/modules/integration/dto"
	"salesflow/modules/integration/entity"
	"salesflow/modules/integration/repository"
	"salesflow/modules/provider"
)

// IntegrationService is the registry of provider credentials: it owns the
// OAuth connect flow, token refresh, webhook subscription lifecycle and
// soft-delete disconnects.
type IntegrationService interface {
	GetConnectURL(ctx context.Context, companyID, userID uuid.UUID, providerName, returnTo string) (string, *errors.AppError)
	HandleCallback(ctx context.Context, providerName, code, rawState string) (returnTo string, warn *errors.Warning, appErr *errors.AppError)
	List(ctx context.Context, companyID uuid.UUID) ([]dto.IntegrationResponse, *errors.AppError)
	Disconnect(ctx context.Context, companyID, userID uuid.UUID, providerName string) *errors.AppError

	// EnsureValidToken refreshes the access token when it is about to expire
	// and persists the result. On refresh failure the integration is flagged
	// for re-authentication.
	EnsureValidToken(ctx context.Context, integ *entity.CalendarIntegration) *errors.AppError
	// RenewWebhookSubscriptions recreates subscriptions that are close to
	// expiry. Failures degrade that integration to polling-only.
	RenewWebhookSubscriptions(ctx context.Context) error
}

type integrationService struct {
	repo      repository.IntegrationRepository
	stateRepo repository.OAuthStateRepository
	adapters  *provider.Factory
	cfg       *config.Config
}

func NewIntegrationService(
	repo repository.IntegrationRepository,
	stateRepo repository.OAuthStateRepository,
	adapters *provider.Factory,
	cfg *config.Config,
) IntegrationService {
	return &integrationService{
		repo:      repo,
		stateRepo: stateRepo,
		adapters:  adapters,
		cfg:       cfg,
	}
}

func (s *integrationService) GetConnectURL(ctx context.Context, companyID, userID uuid.UUID, providerName, returnTo string) (string, *errors.AppError) {
	if !constants.IsValidProvider(providerName) {
		return "", errors.NewAppError(errors.ErrInvalidInput, "unknown provider", nil)
	}

	adapter, err := s.adapters.Adapter(providerName)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInvalidInput, "unknown provider", err)
	}
	builder, ok := adapter.(provider.AuthURLBuilder)
	if !ok {
		return "", errors.NewAppError(errors.ErrInternalServer, "provider has no hosted auth flow", nil)
	}

	nonce := utils.GenerateRandomString(32)
	expiresAt := time.Now().Add(constants.OAuthStateTTL)
	if err := s.stateRepo.Save(ctx, nonce, expiresAt); err != nil {
		logger.Error("IntegrationService:GetConnectURL:SaveState:Error", "error", err)
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to store state token", err)
	}

	state := dto.ConnectState{
		UserID:    userID,
		CompanyID: companyID,
		Provider:  providerName,
		ReturnTo:  returnTo,
		Nonce:     nonce,
	}
	return builder.AuthCodeURL(state.Encode()), nil
}

func (s *integrationService) HandleCallback(ctx context.Context, providerName, code, rawState string) (string, *errors.Warning, *errors.AppError) {
	state, err := dto.DecodeConnectState(rawState)
	if err != nil {
		return "", nil, errors.NewAppError(errors.ErrInvalidInput, "malformed state parameter", err)
	}
	if state.Provider != providerName {
		return "", nil, errors.NewAppError(errors.ErrInvalidInput, "state provider mismatch", nil)
	}

	saved, err := s.stateRepo.Get(ctx, state.Nonce)
	if err != nil {
		return "", nil, errors.NewAppError(errors.ErrInternalServer, "failed to validate state token", err)
	}
	if saved == nil {
		return "", nil, errors.NewAppError(errors.ErrUnauthorized, "invalid or expired state token", nil)
	}
	// One-time use; a delete failure is not worth aborting the connect.
	if err := s.stateRepo.Delete(ctx, state.Nonce); err != nil {
		logger.Warn("IntegrationService:HandleCallback:DeleteState:Error", "error", err)
	}

	adapter, err := s.adapters.Adapter(providerName)
	if err != nil {
		return "", nil, errors.NewAppError(errors.ErrInvalidInput, "unknown provider", err)
	}

	tokens, profile, err := adapter.ExchangeAuthCode(ctx, code)
	if err != nil {
		logger.Error("IntegrationService:HandleCallback:Exchange:Error", "provider", providerName, "error", err)
		if ae, ok := err.(*errors.AppError); ok {
			return "", nil, ae
		}
		return "", nil, errors.NewAppError(errors.ErrInternalServer, "auth code exchange failed", err)
	}

	// Reconnect replaces: deactivate any existing active integration for the
	// same (company, user, provider) before inserting the new one.
	existing, err := s.repo.GetActiveByUserAndProvider(ctx, state.CompanyID, state.UserID, providerName)
	if err != nil {
		return "", nil, errors.NewAppError(errors.ErrInternalServer, "failed to look up integration", err)
	}
	if existing != nil {
		if warn := adapter.DeleteWebhookSubscription(ctx, existing); warn != nil {
			logger.Warn("IntegrationService:HandleCallback:DeleteOldWebhook", "warning", warn.String())
		}
		if err := s.repo.Deactivate(ctx, existing.ID); err != nil {
			return "", nil, errors.NewAppError(errors.ErrInternalServer, "failed to replace integration", err)
		}
	}

	integ := &entity.CalendarIntegration{
		CompanyID:            state.CompanyID,
		UserID:               state.UserID,
		Provider:             providerName,
		AccessToken:          tokens.AccessToken,
		TokenExpiresAt:       tokens.ExpiresAt,
		ProviderAccountEmail: profile.Email,
		ProviderAccountID:    profile.AccountID,
		IsActive:             true,
	}
	if tokens.RefreshToken != "" {
		rt := tokens.RefreshToken
		integ.RefreshToken = &rt
	}

	created, err := s.repo.Create(ctx, integ)
	if err != nil {
		return "", nil, errors.NewAppError(errors.ErrInternalServer, "failed to persist integration", err)
	}

	// Webhook subscription is best-effort: without it sync degrades to
	// polling-only and the warning travels back to the redirect.
	warn := s.subscribeWebhook(ctx, adapter, created)

	logger.Info("IntegrationService:HandleCallback:Connected",
		"provider", providerName,
		"company_id", state.CompanyID,
		"integration_id", created.ID,
		"polling_only", warn != nil,
	)
	return state.ReturnTo, warn, nil
}

func (s *integrationService) subscribeWebhook(ctx context.Context, adapter provider.CalendarAdapter, integ *entity.CalendarIntegration) *errors.Warning {
	callbackURL := fmt.Sprintf("%s/api/v1/webhooks/%s", s.cfg.App.BaseURL, integ.Provider)
	subID, expiresAt, warn := adapter.CreateWebhookSubscription(ctx, integ, callbackURL)
	if warn != nil {
		logger.Warn("IntegrationService:SubscribeWebhook:Degraded",
			"provider", integ.Provider, "integration_id", integ.ID, "warning", warn.String())
		return warn
	}
	if err := s.repo.UpdateWebhookSubscription(ctx, integ.ID, &subID, expiresAt); err != nil {
		logger.Error("IntegrationService:SubscribeWebhook:Persist:Error", "error", err)
		return errors.NewWarning("persist_webhook_subscription", err.Error())
	}
	integ.WebhookSubscriptionID = &subID
	integ.WebhookExpiresAt = expiresAt
	return nil
}

func (s *integrationService) List(ctx context.Context, companyID uuid.UUID) ([]dto.IntegrationResponse, *errors.AppError) {
	integrations, err := s.repo.GetActiveByCompany(ctx, companyID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list integrations", err)
	}

	result := make([]dto.IntegrationResponse, 0, len(integrations))
	for _, integ := range integrations {
		resp := dto.IntegrationResponse{
			ID:                   integ.ID.String(),
			Provider:             integ.Provider,
			ProviderAccountEmail: integ.ProviderAccountEmail,
			IsActive:             integ.IsActive,
			NeedsReauth:          integ.NeedsReauth,
			WebhookActive:        integ.WebhookSubscriptionID != nil,
			SyncMode:             "polling_only",
			LastSyncError:        integ.LastSyncError,
			ConnectedAt:          integ.CreatedAt.Format(time.RFC3339),
		}
		if integ.WebhookSubscriptionID != nil {
			resp.SyncMode = "push+poll"
		}
		if integ.LastSyncedAt != nil {
			t := integ.LastSyncedAt.Format(time.RFC3339)
			resp.LastSyncedAt = &t
		}
		result = append(result, resp)
	}
	return result, nil
}

func (s *integrationService) Disconnect(ctx context.Context, companyID, userID uuid.UUID, providerName string) *errors.AppError {
	integ, err := s.repo.GetActiveByUserAndProvider(ctx, companyID, userID, providerName)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to look up integration", err)
	}
	if integ == nil {
		return errors.NewAppError(errors.ErrNotFound, "no active integration for provider", nil)
	}

	adapter, aerr := s.adapters.Adapter(providerName)
	if aerr == nil {
		if warn := adapter.DeleteWebhookSubscription(ctx, integ); warn != nil {
			logger.Warn("IntegrationService:Disconnect:DeleteWebhook", "warning", warn.String())
		}
	}

	if err := s.repo.Deactivate(ctx, integ.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to deactivate integration", err)
	}

	logger.Info("IntegrationService:Disconnect:Done", "provider", providerName, "integration_id", integ.ID)
	return nil
}

func (s *integrationService) EnsureValidToken(ctx context.Context, integ *entity.CalendarIntegration) *errors.AppError {
	if !integ.TokenExpired(constants.TokenRefreshLeeway) {
		return nil
	}
	if integ.RefreshToken == nil || *integ.RefreshToken == "" {
		_ = s.repo.MarkNeedsReauth(ctx, integ.ID)
		return errors.NewAppError(errors.ErrAuthExpired, "token expired and no refresh token available", nil)
	}

	adapter, err := s.adapters.Adapter(integ.Provider)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "unknown provider", err)
	}

	tokens, err := adapter.RefreshAccessToken(ctx, *integ.RefreshToken)
	if err != nil {
		logger.Error("IntegrationService:EnsureValidToken:Refresh:Error",
			"integration_id", integ.ID, "error", err)
		_ = s.repo.MarkNeedsReauth(ctx, integ.ID)
		if ae, ok := err.(*errors.AppError); ok {
			return ae
		}
		return errors.NewAppError(errors.ErrAuthExpired, "token refresh failed", err)
	}

	integ.AccessToken = tokens.AccessToken
	integ.TokenExpiresAt = tokens.ExpiresAt
	if tokens.RefreshToken != "" {
		rt := tokens.RefreshToken
		integ.RefreshToken = &rt
	}
	if err := s.repo.UpdateTokens(ctx, integ); err != nil {
		logger.Error("IntegrationService:EnsureValidToken:Persist:Error", "error", err)
	}
	return nil
}

func (s *integrationService) RenewWebhookSubscriptions(ctx context.Context) error {
	integrations, err := s.repo.GetAllActive(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(constants.WebhookRenewalLeadDay) * 24 * time.Hour)
	for i := range integrations {
		integ := &integrations[i]
		if integ.WebhookSubscriptionID == nil || integ.WebhookExpiresAt == nil {
			continue
		}
		if integ.WebhookExpiresAt.After(deadline) {
			continue
		}

		adapter, aerr := s.adapters.Adapter(integ.Provider)
		if aerr != nil {
			continue
		}
		if appErr := s.EnsureValidToken(ctx, integ); appErr != nil {
			logger.Warn("IntegrationService:RenewWebhooks:TokenInvalid", "integration_id", integ.ID)
			continue
		}
		if warn := adapter.DeleteWebhookSubscription(ctx, integ); warn != nil {
			logger.Warn("IntegrationService:RenewWebhooks:DeleteOld", "warning", warn.String())
		}
		if warn := s.subscribeWebhook(ctx, adapter, integ); warn != nil {
			// Degraded to polling-only until the next renewal pass succeeds.
			_ = s.repo.UpdateWebhookSubscription(ctx, integ.ID, nil, nil)
		}
	}
	return nil
}
