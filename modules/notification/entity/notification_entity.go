package entity

import (
	"github.com/google/uuid"

	coreEntity "salesflow/core/entity"
)

// Notification is an in-app record of an event lifecycle transition.
type Notification struct {
	coreEntity.BaseEntity
	CompanyID uuid.UUID        `db:"company_id" json:"company_id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      string           `db:"type" json:"type"`
	Data      coreEntity.JSONB `db:"data" json:"data"`
	IsRead    bool             `db:"is_read" json:"is_read"`
}

type PaginatedNotificationEntity = coreEntity.Pagination[Notification]
