package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateEventRequest struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Location          string     `json:"location"`
	Notes             string     `json:"notes"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	EventType         string     `json:"event_type"`
	ContactID         *uuid.UUID `json:"contact_id,omitempty"`
	ParticipantEmails []string   `json:"participant_emails,omitempty"`
	// PushToProvider mirrors the event onto the user's connected calendar.
	PushToProvider bool `json:"push_to_provider"`
	// Force skips the availability conflict check.
	Force bool `json:"force"`
}

type RescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	Force     bool      `json:"force"`
}

type MarkNoShowRequest struct {
	// ScheduleRetry creates a follow-up attempt, two business days out unless
	// RetryDate picks the slot explicitly.
	ScheduleRetry bool       `json:"schedule_retry"`
	RetryDate     *time.Time `json:"retry_date,omitempty"`
	RetryNotes    string     `json:"retry_notes,omitempty"`
}
