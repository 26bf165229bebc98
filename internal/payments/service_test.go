package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/internal/orders"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
)

type scriptedGateway struct {
	mu      sync.Mutex
	results []ChargeResult
	calls   int
}

func (g *scriptedGateway) Charge(context.Context, ChargeRequest) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.results) == 0 {
		return ChargeResult{Approved: true, Reference: "GW-DEFAULT"}, nil
	}
	next := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return next, nil
}

func approve() ChargeResult { return ChargeResult{Approved: true, Reference: "GW-OK"} }
func decline() ChargeResult { return ChargeResult{DeclineReason: declineRandom} }

type recordingNotifier struct {
	mu        sync.Mutex
	purchases int
	failures  int
	refunds   int
}

func (n *recordingNotifier) NotifyPurchase(context.Context, *models.Order, *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.purchases++
}

func (n *recordingNotifier) NotifyFailedPayment(context.Context, *models.Order, *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures++
}

func (n *recordingNotifier) NotifyRefund(context.Context, *models.Order, *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunds++
}

type harness struct {
	conn     *gorm.DB
	orders   orders.Service
	library  library.Service
	payments Service
	notifier *recordingNotifier
}

func newHarness(t *testing.T, gateway Gateway) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orderRepo, client, emitter, nil, logger.Nop())
	require.NoError(t, err)
	librarySvc, err := library.NewService(library.NewRepository(conn), client, nil, logger.Nop())
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	paymentSvc, err := NewService(Config{
		Repo:     NewRepository(conn),
		Orders:   orderRepo,
		Tx:       client,
		Outbox:   emitter,
		Gateway:  gateway,
		Granter:  librarySvc,
		Notifier: notifier,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)

	return &harness{conn: conn, orders: orderSvc, library: librarySvc, payments: paymentSvc, notifier: notifier}
}

func (h *harness) twoSongOrder(t *testing.T, userID uuid.UUID) *models.Order {
	t.Helper()
	artistA, artistB := uuid.New(), uuid.New()
	order, err := h.orders.Create(context.Background(), orders.CreateOrderInput{
		UserID: userID,
		Items: []orders.LineInput{
			{ItemType: enums.ItemTypeSong, ItemID: uuid.New(), ArtistID: &artistA, Quantity: 1, UnitPriceCents: 200},
			{ItemType: enums.ItemTypeSong, ItemID: uuid.New(), ArtistID: &artistB, Quantity: 1, UnitPriceCents: 300},
		},
	})
	require.NoError(t, err)
	return order
}

func (h *harness) orderStatus(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	order, err := h.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return order.Status
}

func (h *harness) purchasedCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.PurchasedItem{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func (h *harness) eventCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func cardInput(order *models.Order, number string) ProcessInput {
	return ProcessInput{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Method:      enums.PaymentMethodCreditCard,
		AmountCents: order.TotalCents,
		Card:        &CardDetails{Number: number},
	}
}

func TestProcessSuccessGrantsEntitlementsAndAdvancesOrder(t *testing.T) {
	h := newHarness(t, &scriptedGateway{results: []ChargeResult{approve()}})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)
	require.Equal(t, int64(500), order.TotalCents)

	result, err := h.payments.Process(context.Background(), cardInput(order, "4242 4242 4242 4242"))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, enums.PaymentStatusCompleted, result.Status)
	require.Regexp(t, `^TXN-\d{14}-[0-9A-F]{12}$`, result.TransactionID)
	require.NotNil(t, result.Payment.CompletedAt)
	require.Equal(t, "42424242", *result.Payment.CardBIN)
	require.Equal(t, "4242", *result.Payment.CardLast4)

	require.Equal(t, enums.OrderStatusProcessing, h.orderStatus(t, order.ID))
	require.Equal(t, int64(2), h.purchasedCount(t, userID))
	require.Equal(t, 1, h.notifier.purchases)
	require.Equal(t, int64(1), h.eventCount(t, enums.EventPaymentCompleted))

	attempts, err := h.payments.ListAttempts(context.Background(), result.Payment.ID, Actor{UserID: userID})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, enums.PaymentStatusCompleted, *attempts[0].Outcome)
	require.NotNil(t, attempts[0].FinishedAt)
}

func TestProcessDeclineThenRetry(t *testing.T) {
	gw := NewSimulatedGateway(config.PaymentsConfig{DeclineCardPrefix: "4000", SuccessProbability: 1})
	h := newHarness(t, gw)
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	result, err := h.payments.Process(context.Background(), cardInput(order, "4000000000000002"))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, enums.PaymentStatusFailed, result.Status)
	require.Equal(t, declineTestCard, result.Message)
	require.Equal(t, declineTestCard, *result.Payment.ErrorMessage)
	require.Equal(t, enums.OrderStatusPending, h.orderStatus(t, order.ID))
	require.Zero(t, h.purchasedCount(t, userID))
	require.Equal(t, 1, h.notifier.failures)

	// Stop declining the test card so the retry goes through.
	gw.declinePrefix = "9999"
	retried, err := h.payments.Retry(context.Background(), result.Payment.ID, Actor{UserID: userID})
	require.NoError(t, err)
	require.True(t, retried.Success)
	require.Equal(t, 1, retried.Payment.RetryCount)
	require.Nil(t, retried.Payment.ErrorMessage)
	require.Equal(t, result.TransactionID, retried.TransactionID)
	require.Equal(t, enums.OrderStatusProcessing, h.orderStatus(t, order.ID))

	attempts, err := h.payments.ListAttempts(context.Background(), result.Payment.ID, Actor{UserID: userID})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, enums.PaymentStatusFailed, *attempts[0].Outcome)
	require.Equal(t, enums.PaymentStatusCompleted, *attempts[1].Outcome)
	require.Equal(t, 2, attempts[1].AttemptNumber)
}

func TestRetryRequiresFailedPayment(t *testing.T) {
	h := newHarness(t, &scriptedGateway{})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	result, err := h.payments.Process(context.Background(), cardInput(order, "4242424242424242"))
	require.NoError(t, err)

	_, err = h.payments.Retry(context.Background(), result.Payment.ID, Actor{UserID: userID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, err.Error(), "only failed payments can be retried")

	_, err = h.payments.Retry(context.Background(), uuid.New(), Actor{UserID: userID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRefundCompletedPaymentCancelsOrderAndKeepsEntitlements(t *testing.T) {
	h := newHarness(t, &scriptedGateway{})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	result, err := h.payments.Process(context.Background(), cardInput(order, "4242424242424242"))
	require.NoError(t, err)

	refunded, err := h.payments.Refund(context.Background(), result.Payment.ID, Actor{Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)
	require.Equal(t, enums.OrderStatusCancelled, h.orderStatus(t, order.ID))
	require.Equal(t, int64(2), h.purchasedCount(t, userID))
	require.Equal(t, 1, h.notifier.refunds)
	require.Equal(t, int64(1), h.eventCount(t, enums.EventPaymentRefunded))

	_, err = h.payments.Refund(context.Background(), result.Payment.ID, Actor{Role: enums.UserRoleAdmin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundPendingPaymentIsRejectedWithoutChanges(t *testing.T) {
	h := newHarness(t, &scriptedGateway{})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	pending := &models.Payment{
		TransactionID: "TXN-PENDING",
		OrderID:       order.ID,
		UserID:        userID,
		Method:        enums.PaymentMethodWallet,
		Status:        enums.PaymentStatusPending,
		AmountCents:   order.TotalCents,
	}
	require.NoError(t, h.conn.Create(pending).Error)

	_, err := h.payments.Refund(context.Background(), pending.ID, Actor{Role: enums.UserRoleAdmin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, err.Error(), "only completed payments can be refunded")

	stored, err := h.payments.Get(context.Background(), pending.ID, Actor{UserID: userID})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, stored.Status)
	require.Equal(t, enums.OrderStatusPending, h.orderStatus(t, order.ID))
	require.Zero(t, h.eventCount(t, enums.EventPaymentRefunded))
}

func TestProcessGuards(t *testing.T) {
	h := newHarness(t, &scriptedGateway{})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)
	ctx := context.Background()

	input := cardInput(order, "4242424242424242")
	input.AmountCents = 499
	_, err := h.payments.Process(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input = cardInput(order, "4242")
	_, err = h.payments.Process(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input = cardInput(order, "4242424242424242")
	input.UserID = uuid.New()
	_, err = h.payments.Process(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	input = cardInput(order, "")
	input.Method = enums.PaymentMethodPayPal
	input.Card = nil
	result, err := h.payments.Process(ctx, input)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Nil(t, result.Payment.CardBIN)

	_, err = h.payments.Process(ctx, cardInput(order, "4242424242424242"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.payments.Get(ctx, result.Payment.ID, Actor{UserID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	byTxn, err := h.payments.GetByTransactionID(ctx, result.TransactionID, Actor{UserID: userID})
	require.NoError(t, err)
	require.Equal(t, result.Payment.ID, byTxn.ID)

	page, err := h.payments.List(ctx, ListInput{UserID: userID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestConcurrentRetriesOnlyOneWins(t *testing.T) {
	gw := &scriptedGateway{results: []ChargeResult{decline(), approve()}}
	h := newHarness(t, gw)
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	result, err := h.payments.Process(context.Background(), cardInput(order, "4242424242424242"))
	require.NoError(t, err)
	require.False(t, result.Success)

	const workers = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.payments.Retry(context.Background(), result.Payment.ID, Actor{UserID: userID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "unexpected error %v", err)
			conflicts++
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, conflicts)

	stored, err := h.payments.Get(context.Background(), result.Payment.ID, Actor{UserID: userID})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.Equal(t, 1, stored.RetryCount)
	require.Equal(t, int64(2), h.purchasedCount(t, userID))
}

func TestReapStaleFailsAbandonedProcessingPayments(t *testing.T) {
	h := newHarness(t, &scriptedGateway{})
	userID := uuid.New()
	order := h.twoSongOrder(t, userID)

	stuck := &models.Payment{
		TransactionID: "TXN-STUCK",
		OrderID:       order.ID,
		UserID:        userID,
		Method:        enums.PaymentMethodWallet,
		Status:        enums.PaymentStatusProcessing,
		AmountCents:   order.TotalCents,
	}
	require.NoError(t, h.conn.Create(stuck).Error)
	require.NoError(t, h.conn.Create(&models.PaymentAttempt{PaymentID: stuck.ID, AttemptNumber: 1, StartedAt: time.Now().UTC()}).Error)
	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", stuck.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	reaped, err := h.payments.ReapStale(context.Background(), 15*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	stored, err := h.payments.Get(context.Background(), stuck.ID, Actor{Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.Equal(t, staleFailureReason, *stored.ErrorMessage)
	require.Equal(t, 1, h.notifier.failures)
	require.Equal(t, enums.OrderStatusPending, h.orderStatus(t, order.ID))

	reaped, err = h.payments.ReapStale(context.Background(), 15*time.Minute, 10)
	require.NoError(t, err)
	require.Zero(t, reaped)
}
