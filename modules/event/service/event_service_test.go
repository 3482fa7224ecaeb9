package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/core/config"
	"salesflow/core/errors"
	"salesflow/modules/event/dto"
	"salesflow/modules/event/entity"
	"salesflow/modules/event/repository"
	"salesflow/modules/provider"
)

type memoryEventRepo struct {
	store map[uuid.UUID]*entity.CalendarEvent
}

func newMemoryEventRepo() *memoryEventRepo {
	return &memoryEventRepo{store: make(map[uuid.UUID]*entity.CalendarEvent)}
}

func (m *memoryEventRepo) Create(ctx context.Context, ev *entity.CalendarEvent) (*entity.CalendarEvent, error) {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	ev.UpdatedAt = time.Now()
	cp := *ev
	m.store[ev.ID] = &cp
	return ev, nil
}

func (m *memoryEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarEvent, error) {
	ev, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (m *memoryEventRepo) GetByExternalID(ctx context.Context, integrationID uuid.UUID, externalID string) (*entity.CalendarEvent, error) {
	for _, ev := range m.store {
		if ev.IntegrationID != nil && *ev.IntegrationID == integrationID &&
			ev.ExternalID != nil && *ev.ExternalID == externalID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryEventRepo) List(ctx context.Context, companyID uuid.UUID, filter repository.ListFilter) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	for _, ev := range m.store {
		if ev.CompanyID == companyID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memoryEventRepo) ListActiveInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	for _, ev := range m.store {
		if ev.CompanyID == companyID && ev.Status != entity.StatusCancelled && ev.Overlaps(start, end) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memoryEventRepo) ListProviderSourcedInWindow(ctx context.Context, integrationID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	for _, ev := range m.store {
		if ev.IntegrationID != nil && *ev.IntegrationID == integrationID &&
			ev.ProviderSourced() && ev.Status != entity.StatusCancelled && ev.Overlaps(start, end) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memoryEventRepo) FindOverlapping(ctx context.Context, companyID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]entity.CalendarEvent, error) {
	var out []entity.CalendarEvent
	for _, ev := range m.store {
		if ev.CompanyID != companyID || ev.Status == entity.StatusCancelled {
			continue
		}
		if excludeID != nil && ev.ID == *excludeID {
			continue
		}
		if ev.Overlaps(start, end) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memoryEventRepo) Update(ctx context.Context, ev *entity.CalendarEvent) error {
	cp := *ev
	m.store[ev.ID] = &cp
	return nil
}

func (m *memoryEventRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error {
	ev := m.store[id]
	ev.Status = status
	ev.CancelledAt = cancelledAt
	return nil
}

type recordingNotifier struct {
	transitions []string
}

func (r *recordingNotifier) NotifyTransition(ctx context.Context, ev *entity.CalendarEvent, transition string) *errors.Warning {
	r.transitions = append(r.transitions, transition)
	return nil
}

func newTestService(repo repository.EventRepository, notifier Notifier) EventService {
	cfg := &config.Config{App: config.AppConfig{BaseURL: "http://localhost:7070", DefaultTimezone: "UTC"}}
	return NewEventService(repo, nil, nil, provider.NewFactory(cfg), notifier)
}

func createReq(start, end time.Time) *dto.CreateEventRequest {
	return &dto.CreateEventRequest{
		Title:     "Demo call",
		StartTime: start,
		EndTime:   end,
		EventType: entity.TypeCall,
	}
}

func TestCreateEvent(t *testing.T) {
	repo := newMemoryEventRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	ev, appErr := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(30*time.Minute)))
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusScheduled, ev.Status)
	assert.Equal(t, entity.SourceManual, ev.Source)
	assert.Equal(t, []string{"created"}, notifier.transitions)
}

func TestCreateEventSlotConflict(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	first, appErr := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))
	require.Nil(t, appErr)

	_, appErr = svc.Create(context.Background(), companyID, userID, createReq(start.Add(30*time.Minute), start.Add(90*time.Minute)))
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrSlotConflict, appErr.Code)
	ids, ok := appErr.Details["conflicting_event_ids"].([]string)
	require.True(t, ok)
	assert.Contains(t, ids, first.ID.String())
}

func TestCreateEventForceBypassesConflict(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	_, appErr := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))
	require.Nil(t, appErr)

	req := createReq(start, start.Add(time.Hour))
	req.Force = true
	_, appErr = svc.Create(context.Background(), companyID, userID, req)
	assert.Nil(t, appErr)
}

func TestCreateEventBackToBackSlotsDoNotConflict(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	_, appErr := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(30*time.Minute)))
	require.Nil(t, appErr)

	_, appErr = svc.Create(context.Background(), companyID, userID, createReq(start.Add(30*time.Minute), start.Add(time.Hour)))
	assert.Nil(t, appErr)
}

func TestCancelIsIdempotent(t *testing.T) {
	repo := newMemoryEventRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	cancelled, appErr := svc.Cancel(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	again, appErr := svc.Cancel(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusCancelled, again.Status)
	// only one cancelled notification
	assert.Equal(t, []string{"created", "cancelled"}, notifier.transitions)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	_, appErr := svc.Complete(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)

	_, appErr = svc.Confirm(context.Background(), companyID, ev.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)

	_, appErr = svc.Cancel(context.Background(), companyID, ev.ID)
	require.NotNil(t, appErr)

	_, appErr = svc.Reschedule(context.Background(), companyID, ev.ID, &dto.RescheduleRequest{
		StartTime: start.Add(24 * time.Hour),
		EndTime:   start.Add(25 * time.Hour),
	})
	require.NotNil(t, appErr)
}

func TestConfirmThenComplete(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	confirmed, appErr := svc.Confirm(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusConfirmed, confirmed.Status)

	completed, appErr := svc.Complete(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusCompleted, completed.Status)
}

func TestMarkNoShowSchedulesRetryTwoBusinessDaysFromNow(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	// the meeting happened a month ago; the retry must still land ahead of now
	start := time.Now().AddDate(0, -1, 0).Truncate(time.Minute)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(30*time.Minute)))

	marked, retry, appErr := svc.MarkNoShow(context.Background(), companyID, ev.ID, &dto.MarkNoShowRequest{ScheduleRetry: true})
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusNoShow, marked.Status)

	require.NotNil(t, retry)
	assert.WithinDuration(t, AddBusinessDays(time.Now(), 2), retry.StartTime, time.Minute)
	assert.True(t, retry.StartTime.After(time.Now()))
	assert.Equal(t, 30*time.Minute, retry.EndTime.Sub(retry.StartTime))
	assert.Equal(t, entity.TypeNoShowRetry, retry.EventType)
	assert.False(t, retry.NeedsManualReschedule)
	require.NotNil(t, retry.ParentEventID)
	assert.Equal(t, ev.ID, *retry.ParentEventID)
}

func TestMarkNoShowHonorsRetryDateAndNotes(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(30*time.Minute)))

	retryDate := time.Date(2026, 9, 21, 9, 30, 0, 0, time.UTC)
	_, retry, appErr := svc.MarkNoShow(context.Background(), companyID, ev.ID, &dto.MarkNoShowRequest{
		ScheduleRetry: true,
		RetryDate:     &retryDate,
		RetryNotes:    "second attempt, contact requested morning",
	})
	require.Nil(t, appErr)
	require.NotNil(t, retry)
	assert.Equal(t, retryDate, retry.StartTime)
	assert.Equal(t, retryDate.Add(30*time.Minute), retry.EndTime)
	assert.Equal(t, "second attempt, contact requested morning", retry.Notes)
	assert.False(t, retry.NeedsManualReschedule)
}

func TestMarkNoShowRetryConflictFlagsManualReschedule(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(30*time.Minute)))

	// Pre-book the requested retry slot
	retryDate := time.Date(2026, 9, 14, 14, 0, 0, 0, time.UTC)
	blocker := createReq(retryDate, retryDate.Add(time.Hour))
	_, appErr := svc.Create(context.Background(), companyID, userID, blocker)
	require.Nil(t, appErr)

	_, retry, appErr := svc.MarkNoShow(context.Background(), companyID, ev.ID, &dto.MarkNoShowRequest{
		ScheduleRetry: true,
		RetryDate:     &retryDate,
	})
	require.Nil(t, appErr)
	require.NotNil(t, retry)
	assert.True(t, retry.NeedsManualReschedule)
}

func TestRescheduleRecordsHistory(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	newStart := start.Add(24 * time.Hour)
	updated, appErr := svc.Reschedule(context.Background(), companyID, ev.ID, &dto.RescheduleRequest{
		StartTime: newStart,
		EndTime:   newStart.Add(time.Hour),
		Reason:    "contact asked to move",
	})
	require.Nil(t, appErr)

	assert.Equal(t, newStart, updated.StartTime)
	require.Len(t, updated.RescheduleHistory, 1)
	assert.Equal(t, "contact asked to move", updated.RescheduleHistory[0]["reason"])
	assert.Equal(t, start.Format(time.RFC3339), updated.RescheduleHistory[0]["from_start"])
}

func TestRescheduleExcludesSelfFromConflictCheck(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	// Shift by 15 minutes; the only overlap is the event itself
	updated, appErr := svc.Reschedule(context.Background(), companyID, ev.ID, &dto.RescheduleRequest{
		StartTime: start.Add(15 * time.Minute),
		EndTime:   start.Add(75 * time.Minute),
	})
	require.Nil(t, appErr)
	assert.Equal(t, start.Add(15*time.Minute), updated.StartTime)
}

func TestRescheduleResetsStatusToScheduled(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	_, appErr := svc.Confirm(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)

	// moving a confirmed event demands a fresh confirmation
	updated, appErr := svc.Reschedule(context.Background(), companyID, ev.ID, &dto.RescheduleRequest{
		StartTime: start.Add(24 * time.Hour),
		EndTime:   start.Add(25 * time.Hour),
	})
	require.Nil(t, appErr)
	assert.Equal(t, entity.StatusScheduled, updated.Status)

	stored, err := repo.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusScheduled, stored.Status)
}

func TestCreateEventConflictsAcrossUsers(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID := uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	_, appErr := svc.Create(context.Background(), companyID, uuid.New(), createReq(start, start.Add(time.Hour)))
	require.Nil(t, appErr)

	// a different rep in the same company cannot double-book the slot
	_, appErr = svc.Create(context.Background(), companyID, uuid.New(), createReq(start.Add(30*time.Minute), start.Add(90*time.Minute)))
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrSlotConflict, appErr.Code)
}

func TestCreateEventCompletedEventStillBlocksSlot(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	_, appErr := svc.Complete(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)

	_, appErr = svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrSlotConflict, appErr.Code)
}

func TestCreateEventCancelledEventFreesSlot(t *testing.T) {
	repo := newMemoryEventRepo()
	svc := newTestService(repo, nil)

	companyID, userID := uuid.New(), uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	ev, _ := svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))

	_, appErr := svc.Cancel(context.Background(), companyID, ev.ID)
	require.Nil(t, appErr)

	_, appErr = svc.Create(context.Background(), companyID, userID, createReq(start, start.Add(time.Hour)))
	assert.Nil(t, appErr)
}

func TestAddBusinessDays(t *testing.T) {
	cases := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"thursday to monday", time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC), time.Date(2026, 9, 14, 14, 0, 0, 0, time.UTC)},
		{"friday to tuesday", time.Date(2026, 9, 11, 9, 0, 0, 0, time.UTC), time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)},
		{"monday to wednesday", time.Date(2026, 9, 7, 16, 30, 0, 0, time.UTC), time.Date(2026, 9, 9, 16, 30, 0, 0, time.UTC)},
		{"saturday to tuesday", time.Date(2026, 9, 12, 11, 0, 0, 0, time.UTC), time.Date(2026, 9, 15, 11, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AddBusinessDays(tc.from, 2))
		})
	}
}
