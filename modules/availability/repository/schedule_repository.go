package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"salesflow/core/database"
	"salesflow/modules/availability/entity"
)

type ScheduleRepository interface {
	GetByCompany(ctx context.Context, companyID uuid.UUID) (*entity.CompanySchedule, error)
	Upsert(ctx context.Context, sched *entity.CompanySchedule) (*entity.CompanySchedule, error)
}

type scheduleRepository struct {
	db database.IDatabase
}

func NewScheduleRepository(db database.IDatabase) ScheduleRepository {
	return &scheduleRepository{db: db}
}

const scheduleColumns = `
	id, company_id, timezone, work_start, work_end, working_days, slot_minutes, holidays,
	exclude_holidays, created_at, updated_at
`

func (r *scheduleRepository) GetByCompany(ctx context.Context, companyID uuid.UUID) (*entity.CompanySchedule, error) {
	var sched entity.CompanySchedule
	query := `SELECT ` + scheduleColumns + ` FROM company_schedules WHERE company_id = $1`
	if err := r.db.GetContext(ctx, &sched, query, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sched, nil
}

func (r *scheduleRepository) Upsert(ctx context.Context, sched *entity.CompanySchedule) (*entity.CompanySchedule, error) {
	query := `
		INSERT INTO company_schedules (company_id, timezone, work_start, work_end, working_days, slot_minutes, holidays, exclude_holidays)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			work_start = EXCLUDED.work_start,
			work_end = EXCLUDED.work_end,
			working_days = EXCLUDED.working_days,
			slot_minutes = EXCLUDED.slot_minutes,
			holidays = EXCLUDED.holidays,
			exclude_holidays = EXCLUDED.exclude_holidays,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		sched.CompanyID, sched.Timezone, sched.WorkStart, sched.WorkEnd,
		sched.WorkingDays, sched.SlotMinutes, sched.Holidays, sched.ExcludeHolidays,
	).Scan(&sched.ID, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sched, nil
}
