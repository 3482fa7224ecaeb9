package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/errors"
	"salesflow/core/logger"
	eventEntity "salesflow/modules/event/entity"
	eventRepository "salesflow/modules/event/repository"
	integrationEntity "salesflow/modules/integration/entity"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
)

// Actions reported per applied provider event.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCancelled = "cancelled"
	ActionSkipped   = "skipped"
)

// SyncResult summarizes one reconciliation pass over an integration.
type SyncResult struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Cancelled     int       `json:"cancelled"`
	Skipped       int       `json:"skipped"`
	Errors        []string  `json:"errors,omitempty"`
}

func (r *SyncResult) count(action string) {
	switch action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionCancelled:
		r.Cancelled++
	default:
		r.Skipped++
	}
}

type SyncService interface {
	// RunSync reconciles one integration with its provider calendar. Reruns
	// over unchanged provider data are no-ops.
	RunSync(ctx context.Context, integrationID uuid.UUID) (*SyncResult, *errors.AppError)
	// ApplyProviderEvent folds a single provider event into local state and
	// reports the action taken. Shared with the webhook ingestor.
	ApplyProviderEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, pe *provider.ProviderEvent) (string, error)
}

type syncService struct {
	eventRepo eventRepository.EventRepository
	integRepo integrationRepository.IntegrationRepository
	integSvc  integrationService.IntegrationService
	adapters  *provider.Factory
	cache     cache.Cache
	cfg       *config.Config
}

func NewSyncService(
	eventRepo eventRepository.EventRepository,
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	adapters *provider.Factory,
	cache cache.Cache,
	cfg *config.Config,
) SyncService {
	return &syncService{
		eventRepo: eventRepo,
		integRepo: integRepo,
		integSvc:  integSvc,
		adapters:  adapters,
		cache:     cache,
		cfg:       cfg,
	}
}

func (s *syncService) RunSync(ctx context.Context, integrationID uuid.UUID) (*SyncResult, *errors.AppError) {
	integ, err := s.integRepo.GetByID(ctx, integrationID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load integration", err)
	}
	if integ == nil || !integ.IsActive {
		return nil, errors.NewAppError(errors.ErrNotFound, "integration not found or inactive", nil)
	}
	if integ.NeedsReauth {
		return nil, errors.NewAppError(errors.ErrAuthExpired, "integration needs re-authentication", nil)
	}

	if s.cache != nil {
		acquired, lockErr := s.cache.AcquireSyncLock(ctx, integrationID.String())
		if lockErr != nil {
			logger.Warn("SyncService:RunSync:LockError", "error", lockErr)
		} else if !acquired {
			return nil, errors.NewAppError(errors.ErrAlreadyExists, "sync already in progress", nil)
		} else {
			defer func() {
				if relErr := s.cache.ReleaseSyncLock(context.WithoutCancel(ctx), integrationID.String()); relErr != nil {
					logger.Warn("SyncService:RunSync:UnlockError", "error", relErr)
				}
			}()
		}
	}

	if appErr := s.integSvc.EnsureValidToken(ctx, integ); appErr != nil {
		s.recordSyncError(ctx, integ.ID, appErr.Message)
		return nil, appErr
	}

	adapter, aerr := s.adapters.Adapter(integ.Provider)
	if aerr != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "unknown provider", aerr)
	}

	now := time.Now()
	windowStart := now.AddDate(0, 0, -s.cfg.Sync.WindowPastDays)
	windowEnd := now.AddDate(0, 0, s.cfg.Sync.WindowFutureDays)

	query := provider.ListQuery{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	if integ.SyncCursor != nil {
		query.SyncCursor = *integ.SyncCursor
	}
	list, appErr := s.listWithRetry(ctx, adapter, integ, query)
	if appErr != nil {
		s.recordSyncError(ctx, integ.ID, appErr.Message)
		return nil, appErr
	}
	usedCursor := query.SyncCursor != ""

	// An invalidated cursor means incremental state is gone; refetch the
	// whole window from scratch.
	if list.CursorInvalidated {
		logger.Info("SyncService:RunSync:CursorInvalidated", "integration_id", integ.ID)
		query.SyncCursor = ""
		usedCursor = false
		list, appErr = s.listWithRetry(ctx, adapter, integ, query)
		if appErr != nil {
			s.recordSyncError(ctx, integ.ID, appErr.Message)
			return nil, appErr
		}
	}

	result := &SyncResult{IntegrationID: integ.ID}
	seen := make(map[string]bool, len(list.Events))
	for i := range list.Events {
		pe := &list.Events[i]
		seen[pe.ExternalID] = true
		action, applyErr := s.ApplyProviderEvent(ctx, integ, pe)
		if applyErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pe.ExternalID, applyErr))
			continue
		}
		result.count(action)
	}

	// Full-window listings are authoritative: provider-sourced events missing
	// from the window were deleted remotely. Incremental listings deliver
	// deletions as tombstones instead, so skip the absence pass there.
	if !usedCursor {
		if appErr := s.cancelAbsent(ctx, integ.ID, windowStart, windowEnd, seen, result); appErr != nil {
			result.Errors = append(result.Errors, appErr.Message)
		}
	}

	var syncErrMsg *string
	if len(result.Errors) > 0 {
		msg := strings.Join(result.Errors, "; ")
		syncErrMsg = &msg
	}
	var nextCursor *string
	if list.NextCursor != "" {
		nextCursor = &list.NextCursor
	}
	if err := s.integRepo.UpdateSyncState(ctx, integ.ID, nextCursor, now, syncErrMsg); err != nil {
		logger.Error("SyncService:RunSync:PersistState:Error", "error", err)
	}

	logger.Info("SyncService:RunSync:Done",
		"integration_id", integ.ID, "provider", integ.Provider,
		"created", result.Created, "updated", result.Updated,
		"cancelled", result.Cancelled, "skipped", result.Skipped,
		"errors", len(result.Errors))

	if len(result.Errors) > 0 {
		return result, errors.NewAppErrorWithDetails(errors.ErrPartialSync, "sync completed with errors", nil, map[string]any{
			"errors": result.Errors,
		})
	}
	return result, nil
}

// listWithRetry retries transient provider failures with exponential backoff.
func (s *syncService) listWithRetry(ctx context.Context, adapter provider.CalendarAdapter, integ *integrationEntity.CalendarIntegration, query provider.ListQuery) (*provider.ListResult, *errors.AppError) {
	backoff := constants.SyncRetryBaseBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Sync.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewAppError(errors.ErrInternalServer, "sync cancelled", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		list, err := adapter.ListEvents(ctx, integ, query)
		if err == nil {
			return list, nil
		}
		lastErr = err
		if !errors.Retryable(err) {
			break
		}
		logger.Warn("SyncService:ListEvents:Retry",
			"integration_id", integ.ID, "attempt", attempt+1, "error", err)
	}

	if ae, ok := lastErr.(*errors.AppError); ok {
		if ae.Code == errors.ErrAuthExpired {
			_ = s.integRepo.MarkNeedsReauth(ctx, integ.ID)
		}
		return nil, ae
	}
	return nil, errors.NewAppError(errors.ErrProviderUnavailable, "provider listing failed", lastErr)
}

func (s *syncService) ApplyProviderEvent(ctx context.Context, integ *integrationEntity.CalendarIntegration, pe *provider.ProviderEvent) (string, error) {
	local, err := s.eventRepo.GetByExternalID(ctx, integ.ID, pe.ExternalID)
	if err != nil {
		return ActionSkipped, err
	}

	if pe.Cancelled {
		if local == nil || local.Status == eventEntity.StatusCancelled {
			return ActionSkipped, nil
		}
		if local.Terminal() {
			// completed / no_show stay put even when the provider copy dies
			return ActionSkipped, nil
		}
		now := time.Now()
		if err := s.eventRepo.UpdateStatus(ctx, local.ID, eventEntity.StatusCancelled, &now); err != nil {
			return ActionSkipped, err
		}
		return ActionCancelled, nil
	}

	if local == nil {
		return s.createFromProvider(ctx, integ, pe)
	}
	if local.Terminal() {
		return ActionSkipped, nil
	}
	if !s.providerWins(local, pe) {
		return ActionSkipped, nil
	}

	local.Title = pe.Title
	local.Description = pe.Description
	local.Location = pe.Location
	local.StartTime = pe.StartTime
	local.EndTime = pe.EndTime
	local.AllDay = pe.AllDay
	local.ParticipantEmails = pe.ParticipantEmails
	setRevision(local, pe)

	if err := s.eventRepo.Update(ctx, local); err != nil {
		return ActionSkipped, err
	}
	return ActionUpdated, nil
}

func (s *syncService) createFromProvider(ctx context.Context, integ *integrationEntity.CalendarIntegration, pe *provider.ProviderEvent) (string, error) {
	externalID := pe.ExternalID
	ev := &eventEntity.CalendarEvent{
		CompanyID:         integ.CompanyID,
		UserID:            integ.UserID,
		IntegrationID:     &integ.ID,
		Title:             pe.Title,
		Description:       pe.Description,
		Location:          pe.Location,
		StartTime:         pe.StartTime,
		EndTime:           pe.EndTime,
		AllDay:            pe.AllDay,
		Status:            eventEntity.StatusScheduled,
		EventType:         eventEntity.TypeMeeting,
		Source:            integ.Provider,
		ExternalID:        &externalID,
		ParticipantEmails: pe.ParticipantEmails,
	}
	setRevision(ev, pe)

	if _, err := s.eventRepo.Create(ctx, ev); err != nil {
		return ActionSkipped, err
	}
	return ActionCreated, nil
}

// providerWins decides whether an incoming provider event replaces local
// state. Revision markers compare exactly; without them, the provider's
// updated-at timestamp decides, and with neither available the configured
// fallback applies.
func (s *syncService) providerWins(local *eventEntity.CalendarEvent, pe *provider.ProviderEvent) bool {
	if pe.Revision != "" {
		if local.ExternalRevision != nil && *local.ExternalRevision == pe.Revision {
			return false
		}
		return true
	}
	if !pe.UpdatedAt.IsZero() {
		if local.ExternalUpdatedAt != nil && !pe.UpdatedAt.After(*local.ExternalUpdatedAt) {
			return false
		}
		return true
	}
	return s.cfg.Sync.ProviderWinsWithoutRevision
}

func setRevision(ev *eventEntity.CalendarEvent, pe *provider.ProviderEvent) {
	if pe.Revision != "" {
		rev := pe.Revision
		ev.ExternalRevision = &rev
	}
	if !pe.UpdatedAt.IsZero() {
		ts := pe.UpdatedAt
		ev.ExternalUpdatedAt = &ts
	}
}

func (s *syncService) cancelAbsent(ctx context.Context, integrationID uuid.UUID, windowStart, windowEnd time.Time, seen map[string]bool, result *SyncResult) *errors.AppError {
	locals, err := s.eventRepo.ListProviderSourcedInWindow(ctx, integrationID, windowStart, windowEnd)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to list local events", err)
	}
	now := time.Now()
	for i := range locals {
		local := &locals[i]
		if local.ExternalID == nil || seen[*local.ExternalID] || local.Terminal() {
			continue
		}
		if err := s.eventRepo.UpdateStatus(ctx, local.ID, eventEntity.StatusCancelled, &now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", *local.ExternalID, err))
			continue
		}
		result.Cancelled++
	}
	return nil
}

func (s *syncService) recordSyncError(ctx context.Context, integrationID uuid.UUID, msg string) {
	if err := s.integRepo.UpdateSyncState(ctx, integrationID, nil, time.Now(), &msg); err != nil {
		logger.Warn("SyncService:RecordSyncError:Error", "error", err)
	}
}
