package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Rating is a user's score for a catalog entity; one per (user, entity).
type Rating struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID              `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_ratings_user_entity,priority:1"`
	EntityType enums.RatingEntityType `gorm:"column:entity_type;type:varchar(32);not null;uniqueIndex:ux_ratings_user_entity,priority:2;index:ix_ratings_entity,priority:1"`
	EntityID   uuid.UUID              `gorm:"column:entity_id;type:uuid;not null;uniqueIndex:ux_ratings_user_entity,priority:3;index:ix_ratings_entity,priority:2"`
	Score      int                    `gorm:"column:score;not null"`
	Comment    *string                `gorm:"column:comment;type:text"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Rating) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
