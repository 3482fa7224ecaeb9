package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/modules/event/dto"
	"salesflow/modules/event/entity"
	"salesflow/modules/event/repository"
	integrationEntity "salesflow/modules/integration/entity"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
)

// Notifier receives lifecycle transitions. Delivery is best-effort; a
// returned warning is logged, never propagated as a failure.
type Notifier interface {
	NotifyTransition(ctx context.Context, ev *entity.CalendarEvent, transition string) *errors.Warning
}

type EventService interface {
	Create(ctx context.Context, companyID, userID uuid.UUID, req *dto.CreateEventRequest) (*entity.CalendarEvent, *errors.AppError)
	Get(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError)
	List(ctx context.Context, companyID uuid.UUID, filter repository.ListFilter) ([]entity.CalendarEvent, *errors.AppError)
	Confirm(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError)
	Cancel(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError)
	Complete(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError)
	MarkNoShow(ctx context.Context, companyID, id uuid.UUID, req *dto.MarkNoShowRequest) (*entity.CalendarEvent, *entity.CalendarEvent, *errors.AppError)
	Reschedule(ctx context.Context, companyID, id uuid.UUID, req *dto.RescheduleRequest) (*entity.CalendarEvent, *errors.AppError)
}

type eventService struct {
	repo      repository.EventRepository
	integRepo integrationRepository.IntegrationRepository
	integSvc  integrationService.IntegrationService
	adapters  *provider.Factory
	notifier  Notifier
}

func NewEventService(
	repo repository.EventRepository,
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	adapters *provider.Factory,
	notifier Notifier,
) EventService {
	return &eventService{
		repo:      repo,
		integRepo: integRepo,
		integSvc:  integSvc,
		adapters:  adapters,
		notifier:  notifier,
	}
}

func (s *eventService) Create(ctx context.Context, companyID, userID uuid.UUID, req *dto.CreateEventRequest) (*entity.CalendarEvent, *errors.AppError) {
	if req.Title == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "title is required", nil)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end_time must be after start_time", nil)
	}
	eventType := req.EventType
	if eventType == "" {
		eventType = entity.TypeMeeting
	}
	if !entity.IsValidType(eventType) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown event_type", nil)
	}

	if !req.Force {
		if appErr := s.checkConflicts(ctx, companyID, req.StartTime, req.EndTime, nil); appErr != nil {
			return nil, appErr
		}
	}

	ev := &entity.CalendarEvent{
		CompanyID:         companyID,
		UserID:            userID,
		ContactID:         req.ContactID,
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		Notes:             req.Notes,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Status:            entity.StatusScheduled,
		EventType:         eventType,
		Source:            entity.SourceManual,
		ParticipantEmails: req.ParticipantEmails,
	}

	if req.PushToProvider {
		s.pushToProvider(ctx, companyID, userID, ev)
	}

	created, err := s.repo.Create(ctx, ev)
	if err != nil {
		logger.Error("EventService:Create:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to create event", err)
	}

	s.notify(ctx, created, "created")
	return created, nil
}

// pushToProvider mirrors a new internal event onto the owner's connected
// calendar. Failure leaves the event local-only.
func (s *eventService) pushToProvider(ctx context.Context, companyID, userID uuid.UUID, ev *entity.CalendarEvent) {
	integ, adapter := s.resolveWritableIntegration(ctx, companyID, userID)
	if integ == nil {
		return
	}

	externalID, err := adapter.CreateEvent(ctx, integ, &provider.ProviderEvent{
		Title:             ev.Title,
		Description:       ev.Description,
		Location:          ev.Location,
		StartTime:         ev.StartTime,
		EndTime:           ev.EndTime,
		ParticipantEmails: ev.ParticipantEmails,
	})
	if err != nil {
		logger.Warn("EventService:PushToProvider:Failed",
			"provider", integ.Provider, "error", err)
		return
	}
	ev.IntegrationID = &integ.ID
	ev.ExternalID = &externalID
}

// resolveWritableIntegration picks the user's first active integration whose
// adapter supports event creation.
func (s *eventService) resolveWritableIntegration(ctx context.Context, companyID, userID uuid.UUID) (*integrationEntity.CalendarIntegration, provider.CalendarAdapter) {
	integrations, err := s.integRepo.GetActiveByCompany(ctx, companyID)
	if err != nil {
		logger.Warn("EventService:ResolveIntegration:Error", "error", err)
		return nil, nil
	}
	for i := range integrations {
		integ := &integrations[i]
		if integ.UserID != userID || integ.NeedsReauth {
			continue
		}
		adapter, aerr := s.adapters.Adapter(integ.Provider)
		if aerr != nil {
			continue
		}
		if appErr := s.integSvc.EnsureValidToken(ctx, integ); appErr != nil {
			continue
		}
		return integ, adapter
	}
	return nil, nil
}

func (s *eventService) Get(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError) {
	ev, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load event", err)
	}
	if ev == nil || ev.CompanyID != companyID {
		return nil, errors.NewAppError(errors.ErrNotFound, "event not found", nil)
	}
	return ev, nil
}

func (s *eventService) List(ctx context.Context, companyID uuid.UUID, filter repository.ListFilter) ([]entity.CalendarEvent, *errors.AppError) {
	events, err := s.repo.List(ctx, companyID, filter)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list events", err)
	}
	return events, nil
}

func (s *eventService) Confirm(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError) {
	return s.transition(ctx, companyID, id, entity.StatusConfirmed, "confirmed")
}

func (s *eventService) Complete(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError) {
	return s.transition(ctx, companyID, id, entity.StatusCompleted, "completed")
}

// Cancel is idempotent: cancelling an already-cancelled event succeeds
// without side effects.
func (s *eventService) Cancel(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError) {
	ev, appErr := s.Get(ctx, companyID, id)
	if appErr != nil {
		return nil, appErr
	}
	if ev.Status == entity.StatusCancelled {
		return ev, nil
	}
	if !ev.CanTransitionTo(entity.StatusCancelled) {
		return nil, s.transitionError(ev, entity.StatusCancelled)
	}

	now := time.Now()
	ev.Status = entity.StatusCancelled
	ev.CancelledAt = &now
	if err := s.repo.UpdateStatus(ctx, ev.ID, ev.Status, ev.CancelledAt); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to cancel event", err)
	}

	s.cancelRemote(ctx, ev)
	s.notify(ctx, ev, "cancelled")
	return ev, nil
}

// cancelRemote is best-effort; the local cancellation already happened.
func (s *eventService) cancelRemote(ctx context.Context, ev *entity.CalendarEvent) {
	if ev.IntegrationID == nil || ev.ExternalID == nil {
		return
	}
	integ, err := s.integRepo.GetByID(ctx, *ev.IntegrationID)
	if err != nil || integ == nil || !integ.IsActive {
		return
	}
	adapter, aerr := s.adapters.Adapter(integ.Provider)
	if aerr != nil {
		return
	}
	if appErr := s.integSvc.EnsureValidToken(ctx, integ); appErr != nil {
		return
	}
	if warn := adapter.CancelEvent(ctx, integ, *ev.ExternalID); warn != nil {
		logger.Warn("EventService:CancelRemote:Failed",
			"event_id", ev.ID, "provider", integ.Provider, "warning", warn.String())
	}
}

func (s *eventService) MarkNoShow(ctx context.Context, companyID, id uuid.UUID, req *dto.MarkNoShowRequest) (*entity.CalendarEvent, *entity.CalendarEvent, *errors.AppError) {
	ev, appErr := s.transition(ctx, companyID, id, entity.StatusNoShow, "no_show")
	if appErr != nil {
		return nil, nil, appErr
	}
	if req == nil || !req.ScheduleRetry {
		return ev, nil, nil
	}

	// The retry defaults to two business days from now; a stale no-show marked
	// weeks later must not land the retry in the past.
	retryStart := AddBusinessDays(time.Now(), 2)
	if req.RetryDate != nil {
		retryStart = *req.RetryDate
	}
	retryEnd := retryStart.Add(ev.EndTime.Sub(ev.StartTime))

	retry := &entity.CalendarEvent{
		CompanyID:         ev.CompanyID,
		UserID:            ev.UserID,
		ContactID:         ev.ContactID,
		Title:             ev.Title,
		Description:       ev.Description,
		Location:          ev.Location,
		Notes:             req.RetryNotes,
		StartTime:         retryStart,
		EndTime:           retryEnd,
		Status:            entity.StatusScheduled,
		EventType:         entity.TypeNoShowRetry,
		Source:            entity.SourceManual,
		ParticipantEmails: ev.ParticipantEmails,
		ParentEventID:     &ev.ID,
	}

	// A conflicting retry slot is still created, flagged for a human to move.
	if appErr := s.checkConflicts(ctx, ev.CompanyID, retryStart, retryEnd, nil); appErr != nil {
		retry.NeedsManualReschedule = true
	}

	created, err := s.repo.Create(ctx, retry)
	if err != nil {
		logger.Error("EventService:MarkNoShow:CreateRetry:Error", "error", err)
		return ev, nil, errors.NewAppError(errors.ErrInternalServer, "failed to create retry event", err)
	}

	logger.Info("EventService:MarkNoShow:RetryScheduled",
		"event_id", ev.ID, "retry_id", created.ID,
		"retry_start", retryStart, "needs_manual_reschedule", created.NeedsManualReschedule)
	s.notify(ctx, created, "retry_scheduled")
	return ev, created, nil
}

func (s *eventService) Reschedule(ctx context.Context, companyID, id uuid.UUID, req *dto.RescheduleRequest) (*entity.CalendarEvent, *errors.AppError) {
	if !req.EndTime.After(req.StartTime) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end_time must be after start_time", nil)
	}

	ev, appErr := s.Get(ctx, companyID, id)
	if appErr != nil {
		return nil, appErr
	}
	if ev.Terminal() {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "cannot reschedule a finished event", nil)
	}

	if !req.Force {
		if appErr := s.checkConflicts(ctx, ev.CompanyID, req.StartTime, req.EndTime, &ev.ID); appErr != nil {
			return nil, appErr
		}
	}

	ev.RescheduleHistory = append(ev.RescheduleHistory, map[string]any{
		"from_start":     ev.StartTime.Format(time.RFC3339),
		"from_end":       ev.EndTime.Format(time.RFC3339),
		"to_start":       req.StartTime.Format(time.RFC3339),
		"to_end":         req.EndTime.Format(time.RFC3339),
		"reason":         req.Reason,
		"rescheduled_at": time.Now().Format(time.RFC3339),
	})
	ev.StartTime = req.StartTime
	ev.EndTime = req.EndTime
	// Moving the event voids any prior confirmation.
	ev.Status = entity.StatusScheduled
	ev.NeedsManualReschedule = false

	if err := s.repo.Update(ctx, ev); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to reschedule event", err)
	}

	s.notify(ctx, ev, "rescheduled")
	return ev, nil
}

func (s *eventService) transition(ctx context.Context, companyID, id uuid.UUID, target, transition string) (*entity.CalendarEvent, *errors.AppError) {
	ev, appErr := s.Get(ctx, companyID, id)
	if appErr != nil {
		return nil, appErr
	}
	if ev.Status == target {
		return ev, nil
	}
	if !ev.CanTransitionTo(target) {
		return nil, s.transitionError(ev, target)
	}

	ev.Status = target
	if err := s.repo.UpdateStatus(ctx, ev.ID, target, nil); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to update event status", err)
	}

	s.notify(ctx, ev, transition)
	return ev, nil
}

func (s *eventService) transitionError(ev *entity.CalendarEvent, target string) *errors.AppError {
	return errors.NewAppErrorWithDetails(errors.ErrInvalidInput, "invalid status transition", nil, map[string]any{
		"current_status": ev.Status,
		"target_status":  target,
	})
}

func (s *eventService) checkConflicts(ctx context.Context, companyID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) *errors.AppError {
	conflicts, err := s.repo.FindOverlapping(ctx, companyID, start, end, excludeID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "conflict check failed", err)
	}
	if len(conflicts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID.String())
	}
	return errors.NewAppErrorWithDetails(errors.ErrSlotConflict, "slot conflicts with existing events", nil, map[string]any{
		"conflicting_event_ids": ids,
	})
}

func (s *eventService) notify(ctx context.Context, ev *entity.CalendarEvent, transition string) {
	if s.notifier == nil {
		return
	}
	if warn := s.notifier.NotifyTransition(ctx, ev, transition); warn != nil {
		logger.Warn("EventService:Notify:Failed", "event_id", ev.ID, "warning", warn.String())
	}
}

// AddBusinessDays advances by n weekdays, skipping Saturday and Sunday and
// keeping the time of day.
func AddBusinessDays(t time.Time, n int) time.Time {
	result := t
	for added := 0; added < n; {
		result = result.AddDate(0, 0, 1)
		if wd := result.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return result
}
