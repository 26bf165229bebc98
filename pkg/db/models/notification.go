package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Notification is one in-app record per recipient per event. IsSent tracks push delivery only.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index:ix_notifications_user_created,priority:1"`
	Type          enums.NotificationType `gorm:"column:type;type:varchar(48);not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	ReferenceID   *uuid.UUID             `gorm:"column:reference_id;type:uuid"`
	ReferenceType *enums.ReferenceType   `gorm:"column:reference_type;type:varchar(32)"`
	IsRead        bool                   `gorm:"column:is_read;not null;default:false"`
	IsSent        bool                   `gorm:"column:is_sent;not null;default:false"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	SentAt        *time.Time             `gorm:"column:sent_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime;index:ix_notifications_user_created,priority:2"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
