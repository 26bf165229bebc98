package ratings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Repository persists ratings.
type Repository interface {
	Find(ctx context.Context, userID uuid.UUID, entityType enums.RatingEntityType, entityID uuid.UUID) (*models.Rating, error)
	Create(ctx context.Context, rating *models.Rating) error
	Update(ctx context.Context, id uuid.UUID, score int, comment *string) error
	Summary(ctx context.Context, entityType enums.RatingEntityType, entityID uuid.UUID) (Summary, error)
}

// Summary aggregates the ratings of one entity.
type Summary struct {
	EntityType enums.RatingEntityType `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	Count      int64                  `json:"count"`
	Average    float64                `json:"average"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ratings repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

// Find returns nil, nil when the user has not rated the entity.
func (r *repository) Find(ctx context.Context, userID uuid.UUID, entityType enums.RatingEntityType, entityID uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND entity_type = ? AND entity_id = ?", userID, entityType, entityID).
		First(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *repository) Create(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, score int, comment *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("id = ?", id).
		Updates(map[string]any{"score": score, "comment": comment}).Error
}

func (r *repository) Summary(ctx context.Context, entityType enums.RatingEntityType, entityID uuid.UUID) (Summary, error) {
	var row struct {
		Count   int64
		Average *float64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("COUNT(*) AS count, AVG(score) AS average").
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Scan(&row).Error
	summary := Summary{EntityType: entityType, EntityID: entityID, Count: row.Count}
	if row.Average != nil {
		summary.Average = *row.Average
	}
	return summary, err
}
