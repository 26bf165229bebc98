package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

// SchemaVersion is the envelope version written by this build.
const SchemaVersion = 1

// ErrInvalidEvent wraps every rejection by Emit; the caller's transaction
// should roll back rather than queue a row the publisher would dead-letter.
var ErrInvalidEvent = errors.New("invalid outbox event")

// DomainEvent is a state change to publish. AggregateType may be left empty
// and is then taken from the event type.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter is what domain services depend on to queue events inside their transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// Emit writes the event with tx so it commits or rolls back with the state change.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, err := s.row(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_id":   row.AggregateID.String(),
			"aggregate_type": row.AggregateType,
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) row(event DomainEvent) (models.OutboxEvent, error) {
	want := event.EventType.Aggregate()
	switch {
	case want == "":
		return models.OutboxEvent{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.EventType)
	case event.AggregateType == "":
		event.AggregateType = want
	case event.AggregateType != want:
		return models.OutboxEvent{}, fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidEvent, event.EventType, want, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, fmt.Errorf("%w: %s has no aggregate id", ErrInvalidEvent, event.EventType)
	}
	if event.Data == nil {
		return models.OutboxEvent{}, fmt.Errorf("%w: %s has no data", ErrInvalidEvent, event.EventType)
	}
	switch {
	case event.Version == 0:
		event.Version = SchemaVersion
	case event.Version < 0 || event.Version > SchemaVersion:
		return models.OutboxEvent{}, fmt.Errorf("%w: schema version %d", ErrInvalidEvent, event.Version)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("%w: encode %s data: %w", ErrInvalidEvent, event.EventType, err)
	}
	id := s.newID()
	body, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       models.JSON(body),
	}, nil
}
