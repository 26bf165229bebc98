package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/internal/orders"
	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/trackvault-backend/pkg/pagination"
)

const (
	maxTransactionAttempts = 5
	defaultGatewayTimeout  = 10 * time.Second
	staleFailureReason     = "payment processing timed out"
	gatewayErrorReason     = "payment gateway unavailable"
)

var cardNumberPattern = regexp.MustCompile(`^\d{12,19}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type entitlementGranter interface {
	GrantEntitlementsTx(ctx context.Context, tx *gorm.DB, order *models.Order, paymentID uuid.UUID) (int, error)
}

// Notifier receives best-effort purchase lifecycle callbacks after commit.
type Notifier interface {
	NotifyPurchase(ctx context.Context, order *models.Order, payment *models.Payment)
	NotifyFailedPayment(ctx context.Context, order *models.Order, payment *models.Payment)
	NotifyRefund(ctx context.Context, order *models.Order, payment *models.Payment)
}

type outcomeRecorder interface {
	ObserveOutcome(operation, status string)
	ObserveGateway(d time.Duration)
}

// Service processes, retries and refunds payments.
type Service interface {
	Process(ctx context.Context, input ProcessInput) (*Result, error)
	Retry(ctx context.Context, paymentID uuid.UUID, actor Actor) (*Result, error)
	Refund(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string, actor Actor) (*models.Payment, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	ListAttempts(ctx context.Context, paymentID uuid.UUID, actor Actor) ([]models.PaymentAttempt, error)
	ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Actor is the caller a payment operation runs on behalf of.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) isAdmin() bool { return a.Role == enums.UserRoleAdmin }

func (a Actor) owns(p *models.Payment) bool { return a.isAdmin() || p.UserID == a.UserID }

// CardDetails carries the raw card number. Only the BIN and last four digits are stored.
type CardDetails struct {
	Number string
}

// ProcessInput starts the first processing cycle for an order.
type ProcessInput struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	Method      enums.PaymentMethod
	AmountCents int64
	Card        *CardDetails
}

// Result is the outcome of a processing cycle. A decline is Success=false with a message, not an error.
type Result struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
	Message       string              `json:"message"`
	Payment       *models.Payment     `json:"payment"`
}

// ListInput filters a user's payments.
type ListInput struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Params  pagination.Params
}

// ListResult wraps a page of payments and the cursor for the next page.
type ListResult struct {
	Items  []models.Payment `json:"items"`
	Cursor string           `json:"cursor"`
}

// Config wires the service.
type Config struct {
	Repo           Repository
	Orders         orders.Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Gateway        Gateway
	Granter        entitlementGranter
	Notifier       Notifier
	Metrics        outcomeRecorder
	GatewayTimeout time.Duration
	Logger         *logger.Logger
}

type service struct {
	repo           Repository
	orders         orders.Repository
	tx             txRunner
	outbox         outboxPublisher
	gateway        Gateway
	granter        entitlementGranter
	notifier       Notifier
	metrics        outcomeRecorder
	gatewayTimeout time.Duration
	logg           *logger.Logger
	now            func() time.Time
}

// NewService validates the wiring. Notifier and Metrics are optional.
func NewService(cfg Config) (Service, error) {
	switch {
	case cfg.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case cfg.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case cfg.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case cfg.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case cfg.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case cfg.Granter == nil:
		return nil, fmt.Errorf("entitlement granter required")
	}
	logg := cfg.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &service{
		repo:           cfg.Repo,
		orders:         cfg.Orders,
		tx:             cfg.Tx,
		outbox:         cfg.Outbox,
		gateway:        cfg.Gateway,
		granter:        cfg.Granter,
		notifier:       cfg.Notifier,
		metrics:        cfg.Metrics,
		gatewayTimeout: timeout,
		logg:           logg,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Process(ctx context.Context, input ProcessInput) (*Result, error) {
	bin, last4, err := validateProcess(input)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	for attempt := 0; attempt < maxTransactionAttempts; attempt++ {
		payment, err = s.openPayment(ctx, input, bin, last4)
		if err == nil || !db.IsUniqueViolation(err, "transaction_id") {
			break
		}
		s.logg.Warn(ctx, "transaction id collision, regenerating")
	}
	if err != nil {
		if db.IsUniqueViolation(err, "transaction_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a unique transaction id")
		}
		return nil, err
	}

	s.logg.Info(s.paymentCtx(ctx, payment), "payment processing started")
	return s.runCycle(ctx, "process", payment)
}

// openPayment locks the order, applies the admission guards and persists a
// PROCESSING payment with its first attempt row.
func (s *service) openPayment(ctx context.Context, input ProcessInput, bin, last4 *string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, only pending orders can be paid", order.Status)
		}
		if input.AmountCents != order.TotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order total").
				WithDetails(map[string]any{"expected_cents": order.TotalCents, "got_cents": input.AmountCents})
		}
		active, err := repo.HasActiveForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payments")
		}
		if active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a payment in progress or completed")
		}

		txnID, err := s.uniqueTransactionID(ctx, repo)
		if err != nil {
			return err
		}
		payment = &models.Payment{
			TransactionID: txnID,
			OrderID:       order.ID,
			UserID:        input.UserID,
			Method:        input.Method,
			Status:        enums.PaymentStatusProcessing,
			AmountCents:   input.AmountCents,
			CardBIN:       bin,
			CardLast4:     last4,
		}
		if err := repo.Create(ctx, payment); err != nil {
			return err
		}
		return repo.CreateAttempt(ctx, &models.PaymentAttempt{
			PaymentID:     payment.ID,
			AttemptNumber: 1,
			StartedAt:     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) uniqueTransactionID(ctx context.Context, repo Repository) (string, error) {
	for {
		candidate := newTransactionID(s.now())
		exists, err := repo.TransactionIDExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check transaction id")
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (s *service) Retry(ctx context.Context, paymentID uuid.UUID, actor Actor) (*Result, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByID(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "payment not found", "load payment")
		}
		if !actor.owns(current) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
		}
		if current.Status != enums.PaymentStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payments can be retried")
		}
		order, err := s.orders.WithTx(tx).FindByID(ctx, current.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, only pending orders can be paid", order.Status)
		}

		moved, err := repo.BeginRetry(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start retry")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payments can be retried")
		}
		payment, err = repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		return repo.CreateAttempt(ctx, &models.PaymentAttempt{
			PaymentID:     payment.ID,
			AttemptNumber: payment.RetryCount + 1,
			StartedAt:     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.paymentCtx(ctx, payment), "payment retry started")
	return s.runCycle(ctx, "retry", payment)
}

// runCycle calls the gateway outside any transaction, then settles the result.
func (s *service) runCycle(ctx context.Context, operation string, payment *models.Payment) (*Result, error) {
	bin := ""
	if payment.CardBIN != nil {
		bin = *payment.CardBIN
	}
	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	started := time.Now()
	charge, gatewayErr := s.gateway.Charge(gatewayCtx, ChargeRequest{
		TransactionID: payment.TransactionID,
		AmountCents:   payment.AmountCents,
		Method:        payment.Method,
		CardBIN:       bin,
		Attempt:       payment.RetryCount + 1,
	})
	cancel()
	if s.metrics != nil {
		s.metrics.ObserveGateway(time.Since(started))
	}
	if gatewayErr != nil {
		s.logg.Warn(s.logg.WithFields(s.paymentCtx(ctx, payment), map[string]any{
			"dependency": "payment_gateway",
			"error":      gatewayErr.Error(),
		}), "payment gateway call failed")
		charge = ChargeResult{DeclineReason: gatewayErrorReason}
	}

	settled, order, err := s.settle(ctx, payment, charge)
	if err != nil {
		s.logg.Error(s.paymentCtx(ctx, payment), "failed to settle payment", err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveOutcome(operation, string(settled.Status))
	}

	result := &Result{
		Success:       settled.Status == enums.PaymentStatusCompleted,
		TransactionID: settled.TransactionID,
		Status:        settled.Status,
		Payment:       settled,
	}
	if result.Success {
		result.Message = "payment completed"
		s.logg.Info(s.paymentCtx(ctx, settled), "payment completed")
		if s.notifier != nil {
			s.notifier.NotifyPurchase(ctx, order, settled)
		}
	} else {
		result.Message = charge.DeclineReason
		s.logg.Info(s.logg.WithField(s.paymentCtx(ctx, settled), "reason", charge.DeclineReason), "payment failed")
		if s.notifier != nil {
			s.notifier.NotifyFailedPayment(ctx, order, settled)
		}
	}
	return result, nil
}

// settle applies the gateway verdict in one transaction: payment status, order
// status, entitlements, attempt audit and outbox event commit together.
func (s *service) settle(ctx context.Context, payment *models.Payment, charge ChargeResult) (*models.Payment, *models.Order, error) {
	var settled *models.Payment
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		now := s.now()
		attemptNumber := payment.RetryCount + 1

		var err error
		order, err = orderRepo.LockByID(ctx, payment.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}

		var eventType enums.OutboxEventType
		if charge.Approved {
			won, err := repo.MarkCompleted(ctx, payment.ID, charge.Reference, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
			}
			if !won {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer processing")
			}
			previous := order.Status
			moved, err := orderRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order")
			}
			if moved {
				order.Status = enums.OrderStatusProcessing
				if err := s.emitOrderStatus(ctx, tx, order, previous); err != nil {
					return err
				}
			} else {
				s.logg.Warn(s.logg.WithField(s.paymentCtx(ctx, payment), "order_status", order.Status), "order was not pending when payment completed")
			}
			if _, err := s.granter.GrantEntitlementsTx(ctx, tx, order, payment.ID); err != nil {
				return err
			}
			reference := charge.Reference
			if err := repo.FinishAttempt(ctx, payment.ID, attemptNumber, enums.PaymentStatusCompleted, nil, &reference, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish attempt")
			}
			eventType = enums.EventPaymentCompleted
		} else {
			won, err := repo.MarkFailed(ctx, payment.ID, charge.DeclineReason, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
			}
			if !won {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer processing")
			}
			reason := charge.DeclineReason
			if err := repo.FinishAttempt(ctx, payment.ID, attemptNumber, enums.PaymentStatusFailed, &reason, nil, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish attempt")
			}
			eventType = enums.EventPaymentFailed
		}

		settled, err = repo.FindByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		return s.emitPayment(ctx, tx, eventType, settled, order, charge.DeclineReason)
	})
	if err != nil {
		return nil, nil, err
	}
	return settled, order, nil
}

func (s *service) Refund(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error) {
	var refunded *models.Payment
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		current, err := repo.LockByID(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "payment not found", "load payment")
		}
		if current.Status != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
		}
		won, err := repo.MarkRefunded(ctx, current.ID, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
		}

		order, err = orderRepo.LockByID(ctx, current.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		previous := order.Status
		if previous != enums.OrderStatusCancelled {
			moved, err := orderRepo.TransitionStatus(ctx, order.ID, previous, enums.OrderStatusCancelled)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
			}
			order.Status = enums.OrderStatusCancelled
			if err := s.emitOrderStatus(ctx, tx, order, previous); err != nil {
				return err
			}
		}

		refunded, err = repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		return s.emitPayment(ctx, tx, enums.EventPaymentRefunded, refunded, order, "")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveOutcome("refund", string(refunded.Status))
	}
	logCtx := s.paymentCtx(ctx, refunded)
	if actor.UserID != uuid.Nil {
		logCtx = s.logg.WithField(logCtx, "actor_id", actor.UserID)
	}
	s.logg.Info(logCtx, "payment refunded")
	if s.notifier != nil {
		s.notifier.NotifyRefund(ctx, order, refunded)
	}
	return refunded, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "load payment")
	}
	if !actor.owns(payment) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

func (s *service) GetByTransactionID(ctx context.Context, transactionID string, actor Actor) (*models.Payment, error) {
	trimmed := strings.TrimSpace(transactionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	payment, err := s.repo.FindByTransactionID(ctx, trimmed)
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "load payment")
	}
	if !actor.owns(payment) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	query := listParams{UserID: input.UserID, OrderID: input.OrderID, Limit: input.Params.Limit}
	if input.Params.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) ListAttempts(ctx context.Context, paymentID uuid.UUID, actor Actor) ([]models.PaymentAttempt, error) {
	if _, err := s.Get(ctx, paymentID, actor); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attempts")
	}
	return attempts, nil
}

// ReapStale fails payments left PROCESSING longer than olderThan, which happens
// when the process dies between the gateway call and settlement.
func (s *service) ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.repo.ListStaleProcessing(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}

	reaped := 0
	var errs []error
	for i := range stale {
		settled, order, err := s.settle(ctx, &stale[i], ChargeResult{DeclineReason: staleFailureReason})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("reap payment %s: %w", stale[i].ID, err))
			continue
		}
		reaped++
		if s.metrics != nil {
			s.metrics.ObserveOutcome("reap", string(settled.Status))
		}
		s.logg.Warn(s.paymentCtx(ctx, settled), "stale payment marked failed")
		if s.notifier != nil {
			s.notifier.NotifyFailedPayment(ctx, order, settled)
		}
	}
	return reaped, multierr.Combine(errs...)
}

func (s *service) emitPayment(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, order *models.Order, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentEvent{
			PaymentID:     payment.ID,
			TransactionID: payment.TransactionID,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        payment.UserID,
			Method:        payment.Method,
			Status:        payment.Status,
			AmountCents:   payment.AmountCents,
			RetryCount:    payment.RetryCount,
			Reason:        reason,
			Lines:         payloads.LinesFromOrder(order),
			OccurredAt:    s.now(),
		},
	})
}

func (s *service) emitOrderStatus(ctx context.Context, tx *gorm.DB, order *models.Order, previous enums.OrderStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			PreviousStatus: previous,
			Status:         order.Status,
		},
	})
}

func (s *service) paymentCtx(ctx context.Context, payment *models.Payment) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"payment_id":     payment.ID,
		"transaction_id": payment.TransactionID,
		"order_id":       payment.OrderID,
		"status":         payment.Status,
		"retry_count":    payment.RetryCount,
	})
}

func validateProcess(input ProcessInput) (bin, last4 *string, err error) {
	switch {
	case input.OrderID == uuid.Nil:
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	case input.UserID == uuid.Nil:
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case !input.Method.IsValid():
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	case input.AmountCents <= 0:
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Method.RequiresCard() {
		return nil, nil, nil
	}
	if input.Card == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "card details required")
	}
	number := strings.ReplaceAll(strings.ReplaceAll(input.Card.Number, " ", ""), "-", "")
	if !cardNumberPattern.MatchString(number) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "card number must be 12 to 19 digits")
	}
	b, l := number[:8], number[len(number)-4:]
	return &b, &l, nil
}

func newTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return "TXN-" + now.UTC().Format("20060102150405") + "-" + suffix
}

func notFoundOr(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
