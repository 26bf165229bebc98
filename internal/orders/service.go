package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/trackvault-backend/pkg/pagination"
)

const maxNumberAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StatusNotifier is told about admin status changes after they commit.
type StatusNotifier interface {
	NotifyOrderStatusChange(ctx context.Context, order *models.Order, previous enums.OrderStatus)
}

// Service defines order creation, queries and admin status progression.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) (*ListResult, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
}

// CreateOrderInput is a checkout request. Prices are taken as given.
type CreateOrderInput struct {
	UserID          uuid.UUID
	ShippingAddress *string
	Items           []LineInput
}

// LineInput is one requested order line.
type LineInput struct {
	ItemType       enums.ItemType
	ItemID         uuid.UUID
	ArtistID       *uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

// UpdateStatusInput drives admin status progression.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   string
}

// ListResult wraps a page of orders and the cursor for the next page.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}

var adminTransitions = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusCancelled: enums.OrderStatusPending,
	enums.OrderStatusShipped:   enums.OrderStatusProcessing,
	enums.OrderStatusDelivered: enums.OrderStatusShipped,
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier StatusNotifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, notifier StatusNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		notifier: notifier,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	var created *models.Order
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		created, lastErr = s.createOnce(ctx, input)
		if lastErr == nil {
			break
		}
		if !db.IsUniqueViolation(lastErr, "order_number") {
			return nil, lastErr
		}
		s.logg.Warn(ctx, "order number collision, regenerating")
	}
	if lastErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique order number")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"total_cents":  created.TotalCents,
	})
	s.logg.Info(logCtx, "order created")
	return created, nil
}

func (s *service) createOnce(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order := buildOrder(input)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for {
			order.OrderNumber = newOrderNumber(s.now())
			exists, err := repo.NumberExists(ctx, order.OrderNumber)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
			}
			if !exists {
				break
			}
		}
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				TotalCents:  order.TotalCents,
				Lines:       payloads.LinesFromOrder(order),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func buildOrder(input CreateOrderInput) *models.Order {
	var shipping *string
	if input.ShippingAddress != nil {
		if trimmed := strings.TrimSpace(*input.ShippingAddress); trimmed != "" {
			shipping = &trimmed
		}
	}
	order := &models.Order{
		UserID:          input.UserID,
		Status:          enums.OrderStatusPending,
		ShippingAddress: shipping,
		Lines:           make([]models.OrderLine, 0, len(input.Items)),
	}
	for i, item := range input.Items {
		subtotal := item.UnitPriceCents * int64(item.Quantity)
		order.Lines = append(order.Lines, models.OrderLine{
			Position:       i + 1,
			ItemType:       item.ItemType,
			ItemID:         item.ItemID,
			ArtistID:       item.ArtistID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		order.TotalCents += subtotal
	}
	return order
}

func validateCreate(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	type key struct {
		itemType enums.ItemType
		itemID   uuid.UUID
	}
	seen := make(map[key]struct{}, len(input.Items))
	for i, item := range input.Items {
		switch {
		case !item.ItemType.IsValid():
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: invalid item type", i)
		case item.ItemID == uuid.Nil:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: item id required", i)
		case item.Quantity <= 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: quantity must be positive", i)
		case item.UnitPriceCents <= 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: price must be positive", i)
		case item.ItemType.IsDigital() && item.Quantity > 1:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: %s quantity must be 1", i, item.ItemType)
		}
		k := key{item.ItemType, item.ItemID}
		if _, dup := seen[k]; dup {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: duplicate item", i)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	return order, mapLookupErr(err)
}

func (s *service) GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	trimmed := strings.TrimSpace(orderNumber)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByNumber(ctx, trimmed)
	return order, mapLookupErr(err)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, listParams{UserID: &userID}, params)
}

func (s *service) ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) (*ListResult, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	return s.list(ctx, listParams{Status: &status}, params)
}

func (s *service) list(ctx context.Context, query listParams, params pagination.Params) (*ListResult, error) {
	query.Limit = params.Limit
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	requiredFrom, ok := adminTransitions[input.Status]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "status %s cannot be set manually", input.Status)
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return mapLookupErr(err)
		}
		if order.Status != requiredFrom {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", order.Status, input.Status)
		}
		changed, err := repo.TransitionStatus(ctx, order.ID, requiredFrom, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		order.Status = input.Status
		updated = order

		var actor *outbox.ActorRef
		if input.ActorUserID != uuid.Nil {
			actor = &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				UserID:         order.UserID,
				PreviousStatus: requiredFrom,
				Status:         input.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID,
		"from":     requiredFrom,
		"to":       updated.Status,
	}), "order status updated")

	if s.notifier != nil {
		s.notifier.NotifyOrderStatusChange(ctx, updated, requiredFrom)
	}
	return updated, nil
}

func mapLookupErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
