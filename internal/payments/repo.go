package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/pagination"
)

// Repository persists payments and their attempt audit. Every status change is a
// compare-and-set on the observed prior status and reports whether it won.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	HasActiveForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	List(ctx context.Context, params listParams) ([]models.Payment, *pagination.Cursor, error)
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	BeginRetry(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	FinishAttempt(ctx context.Context, paymentID uuid.UUID, attemptNumber int, outcome enums.PaymentStatus, reason, reference *string, now time.Time) error
	ListAttempts(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAttempt, error)
}

type listParams struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count > 0, err
}

// HasActiveForOrder reports whether the order already has a payment in flight or settled.
func (r *repository) HasActiveForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status IN ?", orderID, []enums.PaymentStatus{enums.PaymentStatusProcessing, enums.PaymentStatusCompleted}).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Payment, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", params.UserID)
	if params.OrderID != nil {
		query = query.Where("order_id = ?", *params.OrderID)
	}

	var payments []models.Payment
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&payments).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(payments, params.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

func (r *repository) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.PaymentStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, from enums.PaymentStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusProcessing, map[string]any{
		"status":            enums.PaymentStatusCompleted,
		"completed_at":      now,
		"gateway_reference": reference,
		"error_message":     nil,
	})
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusProcessing, map[string]any{
		"status":        enums.PaymentStatusFailed,
		"failed_at":     now,
		"error_message": reason,
	})
}

// BeginRetry moves FAILED back to PROCESSING, bumps retry_count and clears the failure.
func (r *repository) BeginRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusFailed, map[string]any{
		"status":        enums.PaymentStatusProcessing,
		"retry_count":   gorm.Expr("retry_count + 1"),
		"error_message": nil,
		"failed_at":     nil,
	})
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusCompleted, map[string]any{
		"status":      enums.PaymentStatusRefunded,
		"refunded_at": now,
	})
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) FinishAttempt(ctx context.Context, paymentID uuid.UUID, attemptNumber int, outcome enums.PaymentStatus, reason, reference *string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("payment_id = ? AND attempt_number = ? AND finished_at IS NULL", paymentID, attemptNumber).
		Updates(map[string]any{
			"outcome":           outcome,
			"error_message":     reason,
			"gateway_reference": reference,
			"finished_at":       now,
		}).Error
}

func (r *repository) ListAttempts(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	return attempts, err
}
