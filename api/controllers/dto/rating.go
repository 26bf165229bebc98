package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

type Rating struct {
	ID         uuid.UUID              `json:"id"`
	EntityType enums.RatingEntityType `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	Score      int                    `json:"score"`
	Comment    *string                `json:"comment,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func NewRating(rating *models.Rating) Rating {
	return Rating{
		ID:         rating.ID,
		EntityType: rating.EntityType,
		EntityID:   rating.EntityID,
		Score:      rating.Score,
		Comment:    rating.Comment,
		UpdatedAt:  rating.UpdatedAt,
	}
}
