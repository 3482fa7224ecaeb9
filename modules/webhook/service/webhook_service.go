package service

import (
	"context"
	"net/http"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/errors"
	"salesflow/core/logger"
	integrationEntity "salesflow/modules/integration/entity"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
	syncService "salesflow/modules/sync/service"
)

// Outcomes of one webhook delivery. All three are acknowledged with 200 to
// the provider except rejections.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
)

type WebhookService interface {
	// HandleWebhook verifies, dedupes and applies one provider delivery.
	HandleWebhook(ctx context.Context, providerName string, body []byte, headers http.Header) (string, *errors.AppError)
}

type webhookService struct {
	integRepo integrationRepository.IntegrationRepository
	integSvc  integrationService.IntegrationService
	syncSvc   syncService.SyncService
	adapters  *provider.Factory
	cache     cache.Cache
	cfg       *config.Config
}

func NewWebhookService(
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	syncSvc syncService.SyncService,
	adapters *provider.Factory,
	c cache.Cache,
	cfg *config.Config,
) WebhookService {
	return &webhookService{
		integRepo: integRepo,
		integSvc:  integSvc,
		syncSvc:   syncSvc,
		adapters:  adapters,
		cache:     c,
		cfg:       cfg,
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, providerName string, body []byte, headers http.Header) (string, *errors.AppError) {
	adapter, err := s.adapters.Adapter(providerName)
	if err != nil {
		return OutcomeRejected, errors.NewAppError(errors.ErrInvalidInput, "unknown provider", err)
	}

	providerCfg, _ := s.cfg.Provider(providerName)
	if secret := providerCfg.WebhookSecret; secret != "" {
		if err := adapter.VerifyWebhookSignature(body, headers, secret); err != nil {
			logger.Warn("WebhookService:Handle:SignatureRejected", "provider", providerName, "error", err)
			return OutcomeRejected, errors.NewAppError(errors.ErrSignatureInvalid, "webhook signature verification failed", err)
		}
	} else {
		// Accepting unverified deliveries; flagged on every request so the
		// misconfiguration is visible in logs.
		logger.Warn("WebhookService:Handle:NoSecretConfigured", "provider", providerName)
	}

	change, err := adapter.ParseWebhookPayload(body, headers)
	if err != nil {
		return OutcomeRejected, errors.NewAppError(errors.ErrInvalidInput, "malformed webhook payload", err)
	}

	if change.DeliveryID != "" && s.cache != nil {
		first, derr := s.cache.MarkDeliveryProcessed(ctx, providerName+":"+change.DeliveryID)
		if derr != nil {
			logger.Warn("WebhookService:Handle:DedupError", "error", derr)
		} else if !first {
			logger.Info("WebhookService:Handle:DuplicateDelivery",
				"provider", providerName, "delivery_id", change.DeliveryID)
			return OutcomeSkipped, nil
		}
	}

	integ, appErr := s.resolveIntegration(ctx, providerName, change)
	if appErr != nil {
		return OutcomeSkipped, appErr
	}
	if integ == nil {
		// Deliveries for unknown accounts are acknowledged so the provider
		// stops retrying them.
		logger.Info("WebhookService:Handle:UnmatchedIntegration",
			"provider", providerName, "subscription_id", change.SubscriptionID)
		return OutcomeSkipped, nil
	}

	return s.apply(ctx, adapter, integ, change)
}

func (s *webhookService) apply(ctx context.Context, adapter provider.CalendarAdapter, integ *integrationEntity.CalendarIntegration, change *provider.NormalizedChange) (string, *errors.AppError) {
	// Inline payload: apply directly.
	if change.Event != nil {
		if _, err := s.syncSvc.ApplyProviderEvent(ctx, integ, change.Event); err != nil {
			return OutcomeSkipped, errors.NewAppError(errors.ErrInternalServer, "failed to apply event", err)
		}
		return OutcomeProcessed, nil
	}

	// Id-only notification: fetch the event, then apply. A 404 means the
	// event was deleted remotely.
	if change.ExternalID != "" {
		if appErr := s.integSvc.EnsureValidToken(ctx, integ); appErr != nil {
			return OutcomeSkipped, appErr
		}
		pe, err := adapter.GetEvent(ctx, integ, change.ExternalID)
		if err != nil {
			if errors.IsCode(err, errors.ErrNotFound) {
				pe = &provider.ProviderEvent{ExternalID: change.ExternalID, Cancelled: true}
			} else {
				return OutcomeSkipped, errors.NewAppError(errors.ErrProviderUnavailable, "failed to fetch changed event", err)
			}
		}
		if change.Cancelled {
			pe.Cancelled = true
		}
		if _, err := s.syncSvc.ApplyProviderEvent(ctx, integ, pe); err != nil {
			return OutcomeSkipped, errors.NewAppError(errors.ErrInternalServer, "failed to apply event", err)
		}
		return OutcomeProcessed, nil
	}

	// Bodyless ping: fall back to an incremental pull.
	result, appErr := s.syncSvc.RunSync(ctx, integ.ID)
	if appErr != nil {
		if appErr.Code == errors.ErrAlreadyExists {
			// A concurrent sync will pick the change up.
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, appErr
	}
	logger.Info("WebhookService:Handle:IncrementalPull",
		"integration_id", integ.ID,
		"created", result.Created, "updated", result.Updated, "cancelled", result.Cancelled)
	return OutcomeProcessed, nil
}

// resolveIntegration matches the delivery to an integration, most specific
// first: subscription id, then provider account, then participant email.
func (s *webhookService) resolveIntegration(ctx context.Context, providerName string, change *provider.NormalizedChange) (*integrationEntity.CalendarIntegration, *errors.AppError) {
	if change.SubscriptionID != "" {
		integ, err := s.integRepo.GetBySubscriptionID(ctx, providerName, change.SubscriptionID)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "integration lookup failed", err)
		}
		if integ != nil {
			return integ, nil
		}
	}
	if change.AccountID != "" || change.AccountEmail != "" {
		integ, err := s.integRepo.GetByAccount(ctx, providerName, change.AccountID, change.AccountEmail)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "integration lookup failed", err)
		}
		if integ != nil {
			return integ, nil
		}
	}
	for _, email := range change.ParticipantEmails {
		integ, err := s.integRepo.GetByParticipantEmail(ctx, providerName, email)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "integration lookup failed", err)
		}
		if integ != nil {
			return integ, nil
		}
	}
	return nil, nil
}
