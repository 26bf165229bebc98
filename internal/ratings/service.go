package ratings

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const (
	minScore       = 1
	maxScore       = 5
	maxCommentSize = 2000
)

type entitlementGate interface {
	HasPurchasedItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) bool
}

// Service accepts and aggregates ratings.
type Service interface {
	Rate(ctx context.Context, input RateInput) (*models.Rating, error)
	Summary(ctx context.Context, entityType enums.RatingEntityType, entityID uuid.UUID) (Summary, error)
}

// RateInput creates or replaces the caller's rating of an entity.
type RateInput struct {
	UserID     uuid.UUID
	EntityType enums.RatingEntityType
	EntityID   uuid.UUID
	Score      int
	Comment    *string
}

type service struct {
	repo Repository
	gate entitlementGate
	logg *logger.Logger
}

func NewService(repo Repository, gate entitlementGate, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ratings repository required")
	}
	if gate == nil {
		return nil, fmt.Errorf("entitlement gate required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, gate: gate, logg: logg}, nil
}

// Rate checks ownership only for a first rating of a song or album. Updating an
// existing rating skips the gate.
func (s *service) Rate(ctx context.Context, input RateInput) (*models.Rating, error) {
	comment, err := validateRate(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, input.UserID, input.EntityType, input.EntityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rating")
	}
	if existing != nil {
		return s.update(ctx, existing, input.Score, comment)
	}

	if itemType, gated := input.EntityType.PurchasableItemType(); gated {
		if !s.gate.HasPurchasedItem(ctx, input.UserID, itemType, input.EntityID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase required before rating this item")
		}
	}

	rating := &models.Rating{
		UserID:     input.UserID,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Score:      input.Score,
		Comment:    comment,
	}
	if err := s.repo.Create(ctx, rating); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rating")
		}
		// Lost a race with a concurrent first rating; fold into an update.
		existing, findErr := s.repo.Find(ctx, input.UserID, input.EntityType, input.EntityID)
		if findErr != nil || existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "rating changed concurrently")
		}
		return s.update(ctx, existing, input.Score, comment)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"rating_id":   rating.ID,
		"entity_type": rating.EntityType,
		"entity_id":   rating.EntityID,
		"score":       rating.Score,
	}), "rating created")
	return rating, nil
}

func (s *service) update(ctx context.Context, existing *models.Rating, score int, comment *string) (*models.Rating, error) {
	if err := s.repo.Update(ctx, existing.ID, score, comment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rating")
	}
	existing.Score = score
	existing.Comment = comment
	return existing, nil
}

func (s *service) Summary(ctx context.Context, entityType enums.RatingEntityType, entityID uuid.UUID) (Summary, error) {
	if !entityType.IsValid() {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}
	summary, err := s.repo.Summary(ctx, entityType, entityID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize ratings")
	}
	summary.Average = math.Round(summary.Average*100) / 100
	return summary, nil
}

func validateRate(input RateInput) (*string, error) {
	switch {
	case input.UserID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case !input.EntityType.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	case input.EntityID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id required")
	case input.Score < minScore || input.Score > maxScore:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "score must be between %d and %d", minScore, maxScore)
	}
	if input.Comment == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*input.Comment)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxCommentSize {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "comment must be at most %d characters", maxCommentSize)
	}
	return &trimmed, nil
}
