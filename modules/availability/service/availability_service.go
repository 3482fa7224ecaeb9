package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesflow/core/config"
	"salesflow/core/errors"
	"salesflow/core/logger"
	"salesflow/modules/availability/entity"
	"salesflow/modules/availability/repository"
	eventEntity "salesflow/modules/event/entity"
	eventRepository "salesflow/modules/event/repository"
)

// Slot statuses.
const (
	SlotFree = "free"
	SlotBusy = "busy"
)

// Slot is one candidate interval in a day grid, half-open [Start, End),
// tagged free or busy.
type Slot struct {
	Start  time.Time `json:"start_time"`
	End    time.Time `json:"end_time"`
	Status string    `json:"status"`
}

// SlotCheck is the result of a point query for one proposed interval.
type SlotCheck struct {
	Available          bool       `json:"available"`
	ConflictingEventID *uuid.UUID `json:"conflicting_event_id,omitempty"`
}

type AvailabilityService interface {
	// GetDaySlots returns every candidate slot for one calendar day, each
	// tagged free or busy. A nil userID checks the whole company.
	GetDaySlots(ctx context.Context, companyID uuid.UUID, userID *uuid.UUID, date string, slotMinutes int) ([]Slot, *errors.AppError)
	// CheckSlot reports whether [start, end) is free for the user.
	CheckSlot(ctx context.Context, companyID uuid.UUID, userID *uuid.UUID, start, end time.Time) (*SlotCheck, *errors.AppError)
	GetSchedule(ctx context.Context, companyID uuid.UUID) (*entity.CompanySchedule, *errors.AppError)
	UpdateSchedule(ctx context.Context, sched *entity.CompanySchedule) (*entity.CompanySchedule, *errors.AppError)
}

type availabilityService struct {
	schedRepo repository.ScheduleRepository
	eventRepo eventRepository.EventRepository
	cfg       *config.Config
}

func NewAvailabilityService(
	schedRepo repository.ScheduleRepository,
	eventRepo eventRepository.EventRepository,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{schedRepo: schedRepo, eventRepo: eventRepo, cfg: cfg}
}

func (s *availabilityService) GetDaySlots(ctx context.Context, companyID uuid.UUID, userID *uuid.UUID, date string, slotMinutes int) ([]Slot, *errors.AppError) {
	sched, appErr := s.loadSchedule(ctx, companyID)
	if appErr != nil {
		return nil, appErr
	}
	if slotMinutes <= 0 {
		slotMinutes = sched.SlotMinutes
	}

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "invalid schedule timezone", err)
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "date must be YYYY-MM-DD", err)
	}

	if !sched.IsWorkingDay(day.Weekday()) {
		return []Slot{}, nil
	}
	if sched.ExcludeHolidays && sched.IsHoliday(date) {
		return []Slot{}, nil
	}

	dayStart, appErr := atWallClock(day, sched.WorkStart, loc)
	if appErr != nil {
		return nil, appErr
	}
	dayEnd, appErr := atWallClock(day, sched.WorkEnd, loc)
	if appErr != nil {
		return nil, appErr
	}
	if !dayEnd.After(dayStart) {
		return []Slot{}, nil
	}

	busy, err := s.eventRepo.ListActiveInWindow(ctx, companyID, dayStart, dayEnd)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load events", err)
	}
	busy = filterByUser(busy, userID)

	step := time.Duration(slotMinutes) * time.Minute
	slots := []Slot{}
	for cur := dayStart; !cur.Add(step).After(dayEnd); cur = cur.Add(step) {
		slotEnd := cur.Add(step)
		status := SlotFree
		if anyOverlap(busy, cur, slotEnd) {
			status = SlotBusy
		}
		slots = append(slots, Slot{Start: cur, End: slotEnd, Status: status})
	}
	return slots, nil
}

func (s *availabilityService) CheckSlot(ctx context.Context, companyID uuid.UUID, userID *uuid.UUID, start, end time.Time) (*SlotCheck, *errors.AppError) {
	if !end.After(start) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end must be after start", nil)
	}

	busy, err := s.eventRepo.ListActiveInWindow(ctx, companyID, start, end)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load events", err)
	}
	busy = filterByUser(busy, userID)

	for i := range busy {
		if busy[i].Overlaps(start, end) {
			id := busy[i].ID
			return &SlotCheck{Available: false, ConflictingEventID: &id}, nil
		}
	}
	return &SlotCheck{Available: true}, nil
}

func (s *availabilityService) GetSchedule(ctx context.Context, companyID uuid.UUID) (*entity.CompanySchedule, *errors.AppError) {
	sched, appErr := s.loadSchedule(ctx, companyID)
	if appErr != nil {
		return nil, appErr
	}
	return sched, nil
}

func (s *availabilityService) UpdateSchedule(ctx context.Context, sched *entity.CompanySchedule) (*entity.CompanySchedule, *errors.AppError) {
	if _, err := time.LoadLocation(sched.Timezone); err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown timezone", err)
	}
	if _, appErr := parseWallClock(sched.WorkStart); appErr != nil {
		return nil, appErr
	}
	if _, appErr := parseWallClock(sched.WorkEnd); appErr != nil {
		return nil, appErr
	}

	saved, err := s.schedRepo.Upsert(ctx, sched)
	if err != nil {
		logger.Error("AvailabilityService:UpdateSchedule:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save schedule", err)
	}
	return saved, nil
}

// loadSchedule falls back to weekday 09:00-17:00 in the configured default
// timezone when the company never customized its hours.
func (s *availabilityService) loadSchedule(ctx context.Context, companyID uuid.UUID) (*entity.CompanySchedule, *errors.AppError) {
	sched, err := s.schedRepo.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load schedule", err)
	}
	if sched != nil {
		return sched, nil
	}
	return &entity.CompanySchedule{
		CompanyID:   companyID,
		Timezone:    s.cfg.App.DefaultTimezone,
		WorkStart:   "09:00",
		WorkEnd:     "17:00",
		WorkingDays: []int64{1, 2, 3, 4, 5},
		SlotMinutes: 30,
		// new companies get holiday blocking until they opt out
		ExcludeHolidays: true,
	}, nil
}

func filterByUser(events []eventEntity.CalendarEvent, userID *uuid.UUID) []eventEntity.CalendarEvent {
	if userID == nil {
		return events
	}
	filtered := events[:0]
	for _, ev := range events {
		if ev.UserID == *userID {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

func anyOverlap(events []eventEntity.CalendarEvent, start, end time.Time) bool {
	for i := range events {
		if events[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}

func parseWallClock(v string) (time.Time, *errors.AppError) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return time.Time{}, errors.NewAppError(errors.ErrInvalidInput, "time must be HH:MM", err)
	}
	return t, nil
}

func atWallClock(day time.Time, wallClock string, loc *time.Location) (time.Time, *errors.AppError) {
	t, appErr := parseWallClock(wallClock)
	if appErr != nil {
		return time.Time{}, appErr
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
