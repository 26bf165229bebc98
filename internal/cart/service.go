package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the single mutable cart each user owns.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, input AddItemInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
}

// AddItemInput describes a line to add to the cart.
type AddItemInput struct {
	UserID         uuid.UUID
	ItemType       enums.ItemType
	ItemID         uuid.UUID
	ArtistID       *uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds the cart service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.repo.EnsureForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.Cart, error) {
	if err := validateAdd(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, input.UserID, func(ctx context.Context, repo Repository, cart *models.Cart) error {
		line, err := repo.FindLine(ctx, cart.ID, input.ItemType, input.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
		if line == nil {
			line = &models.CartLine{
				CartID:   cart.ID,
				ItemType: input.ItemType,
				ItemID:   input.ItemID,
			}
		}
		line.ArtistID = input.ArtistID
		line.UnitPriceCents = input.UnitPriceCents
		switch {
		case input.ItemType.IsDigital():
			line.Quantity = 1
		default:
			line.Quantity += input.Quantity
		}
		if err := repo.SaveLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
		}
		return nil
	})
}

func (s *service) UpdateQuantity(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if !itemType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	if itemType.IsDigital() && quantity > 1 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s lines are limited to quantity 1", itemType)
	}
	return s.mutate(ctx, userID, func(ctx context.Context, repo Repository, cart *models.Cart) error {
		line, err := repo.FindLine(ctx, cart.ID, itemType, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}
		if quantity <= 0 {
			return wrapDependency(repo.DeleteLine(ctx, line.ID), "remove cart line")
		}
		line.Quantity = quantity
		return wrapDependency(repo.SaveLine(ctx, line), "save cart line")
	})
}

func (s *service) RemoveItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, repo Repository, cart *models.Cart) error {
		line, err := repo.FindLine(ctx, cart.ID, itemType, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
		if line == nil {
			return nil
		}
		return wrapDependency(repo.DeleteLine(ctx, line.ID), "remove cart line")
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, repo Repository, cart *models.Cart) error {
		return wrapDependency(repo.DeleteLines(ctx, cart.ID), "clear cart")
	})
}

// mutate runs fn against the locked cart and recomputes the total in the same transaction.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func(context.Context, Repository, *models.Cart) error) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.EnsureForUser(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure cart")
		}
		cart, err := repo.LockForUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}
		if err := fn(ctx, repo, cart); err != nil {
			return err
		}
		if _, err := repo.RecomputeTotal(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute cart total")
		}
		result, err = repo.LockForUser(ctx, userID)
		return wrapDependency(err, "reload cart")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateAdd(input AddItemInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.ItemType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	if input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.UnitPriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	return nil
}

func wrapDependency(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
