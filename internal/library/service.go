package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type grantRecorder interface {
	AddGranted(n int)
}

// Granter is the slice of the library the payment flow depends on.
type Granter interface {
	GrantEntitlementsTx(ctx context.Context, tx *gorm.DB, order *models.Order, paymentID uuid.UUID) (int, error)
}

// Service exposes entitlement grants and ownership queries.
type Service interface {
	Granter
	GrantEntitlements(ctx context.Context, order *models.Order, paymentID uuid.UUID) (int, error)
	HasPurchased(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) (*Library, error)
	DeleteEntitlement(ctx context.Context, id uuid.UUID) error
}

// Library groups a user's entitlements by item type.
type Library struct {
	Songs       []models.PurchasedItem `json:"songs"`
	Albums      []models.PurchasedItem `json:"albums"`
	Merchandise []models.PurchasedItem `json:"merchandise"`
	Total       int                    `json:"total"`
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics grantRecorder
	logg    *logger.Logger
}

// NewService builds the library service. metrics may be nil.
func NewService(repo Repository, tx txRunner, metrics grantRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("library repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, metrics: metrics, logg: logg}, nil
}

// GrantEntitlements runs the grant in its own transaction.
func (s *service) GrantEntitlements(ctx context.Context, order *models.Order, paymentID uuid.UUID) (int, error) {
	var granted int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		granted, err = s.GrantEntitlementsTx(ctx, tx, order, paymentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return granted, nil
}

// GrantEntitlementsTx inserts one entitlement per order line the user does not already own.
// Existing entitlements are skipped, so repeated calls for the same order are no-ops.
func (s *service) GrantEntitlementsTx(ctx context.Context, tx *gorm.DB, order *models.Order, paymentID uuid.UUID) (int, error) {
	if order == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	granted := 0
	for _, line := range order.Lines {
		created, err := repo.InsertIfAbsent(ctx, &models.PurchasedItem{
			UserID:         order.UserID,
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			OrderID:        order.ID,
			PaymentID:      paymentID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				continue
			}
			return granted, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant entitlement")
		}
		if created {
			granted++
		}
	}

	if s.metrics != nil {
		s.metrics.AddGranted(granted)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID,
		"payment_id": paymentID,
		"user_id":    order.UserID,
		"granted":    granted,
		"lines":      len(order.Lines),
	}), "entitlements granted")
	return granted, nil
}

func (s *service) HasPurchased(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (bool, error) {
	if !itemType.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid item type")
	}
	owned, err := s.repo.Exists(ctx, userID, itemType, itemID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check entitlement")
	}
	return owned, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) (*Library, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list library")
	}
	lib := &Library{
		Songs:       []models.PurchasedItem{},
		Albums:      []models.PurchasedItem{},
		Merchandise: []models.PurchasedItem{},
		Total:       len(items),
	}
	for _, item := range items {
		switch item.ItemType {
		case enums.ItemTypeSong:
			lib.Songs = append(lib.Songs, item)
		case enums.ItemTypeAlbum:
			lib.Albums = append(lib.Albums, item)
		case enums.ItemTypeMerchandise:
			lib.Merchandise = append(lib.Merchandise, item)
		}
	}
	return lib, nil
}

func (s *service) DeleteEntitlement(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete entitlement")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
	}
	s.logg.Info(s.logg.WithField(ctx, "entitlement_id", id), "entitlement deleted")
	return nil
}
