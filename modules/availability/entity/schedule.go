package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	coreEntity "salesflow/core/entity"
)

// CompanySchedule holds a company's bookable hours. WorkStart/WorkEnd are
// wall-clock "15:04" strings interpreted in Timezone; WorkingDays uses
// time.Weekday numbering (0 = Sunday).
type CompanySchedule struct {
	coreEntity.BaseEntity
	CompanyID   uuid.UUID      `db:"company_id" json:"company_id"`
	Timezone    string         `db:"timezone" json:"timezone"`
	WorkStart   string         `db:"work_start" json:"work_start"`
	WorkEnd     string         `db:"work_end" json:"work_end"`
	WorkingDays pq.Int64Array  `db:"working_days" json:"working_days"`
	SlotMinutes int            `db:"slot_minutes" json:"slot_minutes"`
	Holidays    pq.StringArray `db:"holidays" json:"holidays"` // "2006-01-02" dates
	// ExcludeHolidays blocks booking on Holidays dates. Off, the list is
	// kept but ignored.
	ExcludeHolidays bool `db:"exclude_holidays" json:"exclude_holidays"`
}

func (s *CompanySchedule) IsWorkingDay(d time.Weekday) bool {
	for _, wd := range s.WorkingDays {
		if time.Weekday(wd) == d {
			return true
		}
	}
	return false
}

func (s *CompanySchedule) IsHoliday(date string) bool {
	for _, h := range s.Holidays {
		if h == date {
			return true
		}
	}
	return false
}
