package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/money"
)

type paymentLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}

type orderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type titleResolver interface {
	Title(ctx context.Context, itemType enums.ItemType, itemID uuid.UUID, fallback string) string
}

type nameResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID, fallback string) string
}

// Receipt is a read-only projection of a payment and its order.
type Receipt struct {
	ReceiptNumber string              `json:"receipt_number"`
	PaymentID     uuid.UUID           `json:"payment_id"`
	TransactionID string              `json:"transaction_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerName  string              `json:"customer_name"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Currency      string              `json:"currency"`
	Lines         []Line              `json:"lines"`
	SubtotalCents int64               `json:"subtotal_cents"`
	DiscountCents int64               `json:"discount_cents"`
	TaxRate       decimal.Decimal     `json:"tax_rate"`
	TaxCents      int64               `json:"tax_cents"`
	TotalCents    int64               `json:"total_cents"`
	IssuedAt      time.Time           `json:"issued_at"`
}

// Line is one receipt row.
type Line struct {
	Name           string         `json:"name"`
	ItemType       enums.ItemType `json:"item_type"`
	ItemID         uuid.UUID      `json:"item_id"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	SubtotalCents  int64          `json:"subtotal_cents"`
}

// Composer builds receipts on demand. Nothing is stored, so every call issues a new receipt number.
type Composer struct {
	payments paymentLookup
	orders   orderLookup
	catalog  titleResolver
	profiles nameResolver
	cfg      config.ReceiptsConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewComposer wires the receipt composer. catalog and profiles may be nil.
func NewComposer(payments paymentLookup, orders orderLookup, catalog titleResolver, profiles nameResolver, cfg config.ReceiptsConfig, logg *logger.Logger) (*Composer, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment lookup required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	return &Composer{
		payments: payments,
		orders:   orders,
		catalog:  catalog,
		profiles: profiles,
		cfg:      cfg,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Generate composes a receipt for the payment. viewerID must own the payment unless admin is set.
func (c *Composer) Generate(ctx context.Context, paymentID, viewerID uuid.UUID, admin bool) (*Receipt, error) {
	payment, err := c.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, lookupErr(err, "payment not found")
	}
	if !admin && payment.UserID != viewerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	order, err := c.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, lookupErr(err, "order not found")
	}

	receipt := &Receipt{
		ReceiptNumber: newReceiptNumber(c.now()),
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  c.customerName(ctx, payment.UserID),
		PaymentMethod: payment.Method,
		PaymentStatus: payment.Status,
		Currency:      c.cfg.Currency,
		Lines:         make([]Line, 0, len(order.Lines)),
		TaxRate:       c.cfg.TaxRate,
		IssuedAt:      c.now(),
	}
	for _, line := range order.Lines {
		receipt.Lines = append(receipt.Lines, Line{
			Name:           c.itemName(ctx, line),
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	receipt.SubtotalCents = order.TotalCents
	receipt.DiscountCents = money.ApplyRate(receipt.SubtotalCents, c.cfg.DiscountRate)
	taxable := receipt.SubtotalCents - receipt.DiscountCents
	receipt.TaxCents = money.ApplyRate(taxable, c.cfg.TaxRate)
	receipt.TotalCents = taxable + receipt.TaxCents

	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"payment_id":     payment.ID,
	}), "receipt generated")
	return receipt, nil
}

func (c *Composer) customerName(ctx context.Context, userID uuid.UUID) string {
	fallback := "Customer " + strings.ToUpper(userID.String()[:8])
	if c.profiles == nil {
		return fallback
	}
	return c.profiles.DisplayName(ctx, userID, fallback)
}

func (c *Composer) itemName(ctx context.Context, line models.OrderLine) string {
	fallback := fmt.Sprintf("%s %s", titleCase(string(line.ItemType)), strings.ToUpper(line.ItemID.String()[:8]))
	if c.catalog == nil {
		return fallback
	}
	return c.catalog.Title(ctx, line.ItemType, line.ItemID, fallback)
}

func titleCase(value string) string {
	lower := strings.ToLower(value)
	if lower == "" {
		return lower
	}
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func newReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "RCP-" + now.UTC().Format("20060102150405") + "-" + suffix
}

func lookupErr(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt data")
}
