package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"salesflow/core/database"
	"salesflow/modules/event/entity"
)

// ListFilter narrows the company-scoped event listing.
type ListFilter struct {
	UserID    *uuid.UUID
	ContactID *uuid.UUID
	Status    string
	EventType string
	Source    string
	From      *time.Time
	To        *time.Time
	Limit     int
}

type EventRepository interface {
	Create(ctx context.Context, ev *entity.CalendarEvent) (*entity.CalendarEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarEvent, error)
	GetByExternalID(ctx context.Context, integrationID uuid.UUID, externalID string) (*entity.CalendarEvent, error)
	List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]entity.CalendarEvent, error)
	ListActiveInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error)
	ListProviderSourcedInWindow(ctx context.Context, integrationID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error)
	FindOverlapping(ctx context.Context, companyID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]entity.CalendarEvent, error)
	Update(ctx context.Context, ev *entity.CalendarEvent) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error
}

type eventRepository struct {
	db database.IDatabase
}

func NewEventRepository(db database.IDatabase) EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `
	id, company_id, user_id, contact_id, integration_id, title, description, location, notes,
	start_time, end_time, all_day, status, event_type, source, external_id,
	external_revision, external_updated_at, participant_emails, reschedule_history,
	needs_manual_reschedule, parent_event_id, cancelled_at, created_at, updated_at
`

func (r *eventRepository) Create(ctx context.Context, ev *entity.CalendarEvent) (*entity.CalendarEvent, error) {
	query := `
		INSERT INTO calendar_events (
			company_id, user_id, contact_id, integration_id, title, description, location, notes,
			start_time, end_time, all_day, status, event_type, source, external_id,
			external_revision, external_updated_at, participant_emails, reschedule_history,
			needs_manual_reschedule, parent_event_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		ev.CompanyID, ev.UserID, ev.ContactID, ev.IntegrationID, ev.Title, ev.Description,
		ev.Location, ev.Notes, ev.StartTime, ev.EndTime, ev.AllDay, ev.Status, ev.EventType,
		ev.Source, ev.ExternalID, ev.ExternalRevision, ev.ExternalUpdatedAt, ev.ParticipantEmails,
		ev.RescheduleHistory, ev.NeedsManualReschedule, ev.ParentEventID,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarEvent, error) {
	var ev entity.CalendarEvent
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = $1`
	if err := r.db.GetContext(ctx, &ev, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) GetByExternalID(ctx context.Context, integrationID uuid.UUID, externalID string) (*entity.CalendarEvent, error) {
	var ev entity.CalendarEvent
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE integration_id = $1 AND external_id = $2`
	if err := r.db.GetContext(ctx, &ev, query, integrationID, externalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]entity.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE company_id = $1`
	args := []interface{}{companyID}

	appendArg := func(clause string, v interface{}) {
		args = append(args, v)
		query += " AND " + clause + argPlaceholder(len(args))
	}
	if filter.UserID != nil {
		appendArg("user_id = ", *filter.UserID)
	}
	if filter.ContactID != nil {
		appendArg("contact_id = ", *filter.ContactID)
	}
	if filter.Status != "" {
		appendArg("status = ", filter.Status)
	}
	if filter.EventType != "" {
		appendArg("event_type = ", filter.EventType)
	}
	if filter.Source != "" {
		appendArg("source = ", filter.Source)
	}
	if filter.From != nil {
		appendArg("end_time > ", *filter.From)
	}
	if filter.To != nil {
		appendArg("start_time < ", *filter.To)
	}
	query += " ORDER BY start_time ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + argPlaceholder(len(args))
	}

	var events []entity.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

// ListActiveInWindow returns non-cancelled events overlapping [start, end)
// for the whole company. Availability checks and booking conflict checks both
// run against this predicate; keep it in step with FindOverlapping.
func (r *eventRepository) ListActiveInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error) {
	var events []entity.CalendarEvent
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE company_id = $1
		  AND status != 'cancelled'
		  AND start_time < $3 AND $2 < end_time
		ORDER BY start_time ASC
	`
	if err := r.db.SelectContext(ctx, &events, query, companyID, start, end); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListProviderSourcedInWindow(ctx context.Context, integrationID uuid.UUID, start, end time.Time) ([]entity.CalendarEvent, error) {
	var events []entity.CalendarEvent
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE integration_id = $1
		  AND source != 'manual'
		  AND status != 'cancelled'
		  AND start_time < $3 AND $2 < end_time
	`
	if err := r.db.SelectContext(ctx, &events, query, integrationID, start, end); err != nil {
		return nil, err
	}
	return events, nil
}

// FindOverlapping returns the non-cancelled events any booking in
// [start, end) would collide with, across the whole company.
func (r *eventRepository) FindOverlapping(ctx context.Context, companyID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]entity.CalendarEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE company_id = $1
		  AND status != 'cancelled'
		  AND start_time < $3 AND $2 < end_time
	`
	args := []interface{}{companyID, start, end}
	if excludeID != nil {
		args = append(args, *excludeID)
		query += ` AND id != $4`
	}
	query += ` ORDER BY start_time ASC`

	var events []entity.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) Update(ctx context.Context, ev *entity.CalendarEvent) error {
	query := `
		UPDATE calendar_events SET
			title = $2, description = $3, location = $4, notes = $5, start_time = $6,
			end_time = $7, all_day = $8, status = $9, external_revision = $10,
			external_updated_at = $11, participant_emails = $12, reschedule_history = $13,
			needs_manual_reschedule = $14, cancelled_at = $15, updated_at = NOW()
		WHERE id = $1
	`
	return r.db.ExecContext(
		ctx, query,
		ev.ID, ev.Title, ev.Description, ev.Location, ev.Notes, ev.StartTime, ev.EndTime,
		ev.AllDay, ev.Status, ev.ExternalRevision, ev.ExternalUpdatedAt, ev.ParticipantEmails,
		ev.RescheduleHistory, ev.NeedsManualReschedule, ev.CancelledAt,
	)
}

func (r *eventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error {
	query := `UPDATE calendar_events SET status = $2, cancelled_at = $3, updated_at = NOW() WHERE id = $1`
	return r.db.ExecContext(ctx, query, id, status, cancelledAt)
}

func argPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}
