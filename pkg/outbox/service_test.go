package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	paymentID := uuid.New()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   paymentID,
			Data:          payloads.PaymentEvent{PaymentID: paymentID, AmountCents: 500},
		})
	}))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, paymentID, rows[0].AggregateID)

	var data payloads.PaymentEvent
	envelope, err := DecodeEnvelope(rows[0].Payload, &data)
	require.NoError(t, err)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, paymentID, data.PaymentID)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.OrderCreatedEvent{},
		}); err != nil {
			return err
		}
		return errors.New("order insert failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitInfersAggregateAndStampsEnvelope(t *testing.T) {
	_, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)
	fixedID := uuid.New()
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }
	svc.newID = func() uuid.UUID { return fixedID }

	orderID := uuid.New()
	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:   enums.EventOrderStatusChanged,
		AggregateID: orderID,
		Actor:       &ActorRef{UserID: orderID, Role: "admin"},
		Data:        payloads.OrderStatusChangedEvent{OrderID: orderID, Status: enums.OrderStatusCancelled},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", fixedID).Error)
	require.Equal(t, enums.AggregateOrder, row.AggregateType)

	envelope, err := DecodeEnvelope(row.Payload, nil)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, envelope.Version)
	require.Equal(t, fixedID.String(), envelope.EventID)
	require.True(t, envelope.OccurredAt.Equal(at))
	require.Equal(t, "admin", envelope.Actor.Role)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	_, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)
	valid := DomainEvent{
		EventType:   enums.EventPaymentFailed,
		AggregateID: uuid.New(),
		Data:        payloads.PaymentEvent{},
	}

	tests := map[string]func(e *DomainEvent){
		"unknown type":       func(e *DomainEvent) { e.EventType = "something_else" },
		"aggregate mismatch": func(e *DomainEvent) { e.AggregateType = enums.AggregateOrder },
		"no aggregate id":    func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"no data":            func(e *DomainEvent) { e.Data = nil },
		"future version":     func(e *DomainEvent) { e.Version = SchemaVersion + 1 },
		"unencodable data":   func(e *DomainEvent) { e.Data = map[string]any{"ch": make(chan int)} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			event := valid
			mutate(&event)
			require.ErrorIs(t, svc.Emit(context.Background(), conn, event), ErrInvalidEvent)
		})
	}

	require.Error(t, svc.Emit(context.Background(), nil, valid))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	_, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: models.JSON(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: models.JSON(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("pubsub unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload")))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10)
	require.NoError(t, err)
	require.Empty(t, rows)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}
