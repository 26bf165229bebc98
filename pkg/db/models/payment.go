package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Payment is one payment record for an order. Retries reuse the record and bump RetryCount;
// every processing cycle is audited in PaymentAttempt.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID    string              `gorm:"column:transaction_id;type:varchar(64);not null;uniqueIndex:ux_payments_transaction_id"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:ix_payments_user_created,priority:1"`
	Method           enums.PaymentMethod `gorm:"column:method;type:varchar(32);not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index"`
	AmountCents      int64               `gorm:"column:amount_cents;not null"`
	RetryCount       int                 `gorm:"column:retry_count;not null;default:0"`
	ErrorMessage     *string             `gorm:"column:error_message;type:text"`
	CardBIN          *string             `gorm:"column:card_bin;type:varchar(8)"`
	CardLast4        *string             `gorm:"column:card_last4;type:varchar(4)"`
	GatewayReference *string             `gorm:"column:gateway_reference;type:varchar(64)"`
	CompletedAt      *time.Time          `gorm:"column:completed_at"`
	FailedAt         *time.Time          `gorm:"column:failed_at"`
	RefundedAt       *time.Time          `gorm:"column:refunded_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime;index:ix_payments_user_created,priority:2"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PaymentAttempt audits one gateway round trip.
type PaymentAttempt struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID        uuid.UUID            `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_payment_attempts_number,priority:1"`
	AttemptNumber    int                  `gorm:"column:attempt_number;not null;uniqueIndex:ux_payment_attempts_number,priority:2"`
	Outcome          *enums.PaymentStatus `gorm:"column:outcome;type:varchar(32)"`
	ErrorMessage     *string              `gorm:"column:error_message;type:text"`
	GatewayReference *string              `gorm:"column:gateway_reference;type:varchar(64)"`
	StartedAt        time.Time            `gorm:"column:started_at;not null"`
	FinishedAt       *time.Time           `gorm:"column:finished_at"`
}

func (a *PaymentAttempt) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
