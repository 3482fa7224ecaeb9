package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	coreEntity "salesflow/core/entity"
)

// Event lifecycle statuses. Cancelled, completed and no_show are terminal.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

const (
	TypeCall        = "call"
	TypeFollowUp    = "follow_up"
	TypeNoShowRetry = "no_show_retry"
	TypeMeeting     = "meeting"
)

// Event sources. Mirrored events carry their provider's name so the origin
// survives round trips; everything booked here is "manual".
const (
	SourceManual           = "manual"
	SourceGoogleCalendar   = "google_calendar"
	SourceMicrosoftOutlook = "microsoft_outlook"
	SourceCalendly         = "calendly"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusConfirmed: true,
	StatusCancelled: true,
	StatusCompleted: true,
	StatusNoShow:    true,
}

var validTypes = map[string]bool{
	TypeCall:        true,
	TypeFollowUp:    true,
	TypeNoShowRetry: true,
	TypeMeeting:     true,
}

var validSources = map[string]bool{
	SourceManual:           true,
	SourceGoogleCalendar:   true,
	SourceMicrosoftOutlook: true,
	SourceCalendly:         true,
}

func IsValidStatus(s string) bool { return validStatuses[s] }
func IsValidType(t string) bool   { return validTypes[t] }
func IsValidSource(s string) bool { return validSources[s] }

// CalendarEvent is the internal record of a meeting, whether created here or
// mirrored from a provider calendar.
type CalendarEvent struct {
	coreEntity.BaseEntity
	CompanyID     uuid.UUID  `db:"company_id" json:"company_id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	ContactID     *uuid.UUID `db:"contact_id" json:"contact_id,omitempty"`
	IntegrationID *uuid.UUID `db:"integration_id" json:"integration_id,omitempty"`

	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Location    string `db:"location" json:"location"`
	Notes       string `db:"notes" json:"notes,omitempty"`

	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	AllDay    bool      `db:"all_day" json:"all_day"`

	Status    string `db:"status" json:"status"`
	EventType string `db:"event_type" json:"event_type"`
	Source    string `db:"source" json:"source"`

	// Provider linkage. ExternalRevision is the provider's opaque change
	// marker (etag / changeKey); Calendly has none.
	ExternalID        *string    `db:"external_id" json:"external_id,omitempty"`
	ExternalRevision  *string    `db:"external_revision" json:"-"`
	ExternalUpdatedAt *time.Time `db:"external_updated_at" json:"-"`

	ParticipantEmails pq.StringArray        `db:"participant_emails" json:"participant_emails,omitempty"`
	RescheduleHistory coreEntity.JSONBArray `db:"reschedule_history" json:"reschedule_history,omitempty"`

	NeedsManualReschedule bool       `db:"needs_manual_reschedule" json:"needs_manual_reschedule"`
	ParentEventID         *uuid.UUID `db:"parent_event_id" json:"parent_event_id,omitempty"`
	CancelledAt           *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ProviderSourced reports whether the event was mirrored from a connected
// calendar rather than booked here.
func (e *CalendarEvent) ProviderSourced() bool {
	return e.Source != "" && e.Source != SourceManual
}

// Terminal reports whether the event has reached a state that no transition
// may leave.
func (e *CalendarEvent) Terminal() bool {
	return e.Status == StatusCancelled || e.Status == StatusCompleted || e.Status == StatusNoShow
}

// Overlaps uses half-open [start, end) semantics: events that merely touch
// at a boundary do not conflict.
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.StartTime.Before(end) && start.Before(e.EndTime)
}

// CanTransitionTo encodes the state machine. Scheduled may confirm, cancel,
// complete or no-show; confirmed may cancel, complete or no-show.
func (e *CalendarEvent) CanTransitionTo(target string) bool {
	if e.Terminal() {
		return false
	}
	switch e.Status {
	case StatusScheduled:
		return target == StatusConfirmed || target == StatusCancelled ||
			target == StatusCompleted || target == StatusNoShow
	case StatusConfirmed:
		return target == StatusCancelled || target == StatusCompleted || target == StatusNoShow
	}
	return false
}
