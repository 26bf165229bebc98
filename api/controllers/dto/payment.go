package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Payment never exposes the card BIN; only the last four digits leave the service.
type Payment struct {
	ID               uuid.UUID           `json:"id"`
	TransactionID    string              `json:"transaction_id"`
	OrderID          uuid.UUID           `json:"order_id"`
	UserID           uuid.UUID           `json:"user_id"`
	Method           enums.PaymentMethod `json:"method"`
	Status           enums.PaymentStatus `json:"status"`
	AmountCents      int64               `json:"amount_cents"`
	Amount           string              `json:"amount"`
	RetryCount       int                 `json:"retry_count"`
	ErrorMessage     *string             `json:"error_message,omitempty"`
	CardLast4        *string             `json:"card_last4,omitempty"`
	GatewayReference *string             `json:"gateway_reference,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	FailedAt         *time.Time          `json:"failed_at,omitempty"`
	RefundedAt       *time.Time          `json:"refunded_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// PaymentResult mirrors the processing outcome: a decline is a successful call with success=false.
type PaymentResult struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
	Message       string              `json:"message"`
	Payment       *Payment            `json:"payment,omitempty"`
}

type PaymentAttempt struct {
	AttemptNumber    int                  `json:"attempt_number"`
	Outcome          *enums.PaymentStatus `json:"outcome,omitempty"`
	ErrorMessage     *string              `json:"error_message,omitempty"`
	GatewayReference *string              `json:"gateway_reference,omitempty"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       *time.Time           `json:"finished_at,omitempty"`
}

type PaymentPage struct {
	Items  []Payment `json:"items"`
	Cursor string    `json:"cursor"`
}

func NewPayment(payment *models.Payment) Payment {
	return Payment{
		ID:               payment.ID,
		TransactionID:    payment.TransactionID,
		OrderID:          payment.OrderID,
		UserID:           payment.UserID,
		Method:           payment.Method,
		Status:           payment.Status,
		AmountCents:      payment.AmountCents,
		Amount:           Amount(payment.AmountCents),
		RetryCount:       payment.RetryCount,
		ErrorMessage:     payment.ErrorMessage,
		CardLast4:        payment.CardLast4,
		GatewayReference: payment.GatewayReference,
		CompletedAt:      payment.CompletedAt,
		FailedAt:         payment.FailedAt,
		RefundedAt:       payment.RefundedAt,
		CreatedAt:        payment.CreatedAt,
		UpdatedAt:        payment.UpdatedAt,
	}
}

func NewPaymentResult(success bool, transactionID string, status enums.PaymentStatus, message string, payment *models.Payment) PaymentResult {
	result := PaymentResult{
		Success:       success,
		TransactionID: transactionID,
		Status:        status,
		Message:       message,
	}
	if payment != nil {
		view := NewPayment(payment)
		result.Payment = &view
	}
	return result
}

func NewPaymentPage(items []models.Payment, cursor string) PaymentPage {
	page := PaymentPage{Items: make([]Payment, 0, len(items)), Cursor: cursor}
	for i := range items {
		page.Items = append(page.Items, NewPayment(&items[i]))
	}
	return page
}

func NewPaymentAttempts(attempts []models.PaymentAttempt) []PaymentAttempt {
	out := make([]PaymentAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, PaymentAttempt{
			AttemptNumber:    attempt.AttemptNumber,
			Outcome:          attempt.Outcome,
			ErrorMessage:     attempt.ErrorMessage,
			GatewayReference: attempt.GatewayReference,
			StartedAt:        attempt.StartedAt,
			FinishedAt:       attempt.FinishedAt,
		})
	}
	return out
}
