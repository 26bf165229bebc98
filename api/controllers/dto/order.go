package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

type Order struct {
	ID              uuid.UUID         `json:"id"`
	OrderNumber     string            `json:"order_number"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          enums.OrderStatus `json:"status"`
	ShippingAddress *string           `json:"shipping_address,omitempty"`
	TotalCents      int64             `json:"total_cents"`
	Total           string            `json:"total"`
	Lines           []OrderLine       `json:"lines"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type OrderLine struct {
	ItemType       enums.ItemType `json:"item_type"`
	ItemID         uuid.UUID      `json:"item_id"`
	ArtistID       *uuid.UUID     `json:"artist_id,omitempty"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	SubtotalCents  int64          `json:"subtotal_cents"`
}

// OrderPage is a cursor page of orders.
type OrderPage struct {
	Items  []Order `json:"items"`
	Cursor string  `json:"cursor"`
}

func NewOrder(order *models.Order) Order {
	lines := make([]OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLine{
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			ArtistID:       line.ArtistID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}
	return Order{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Status:          order.Status,
		ShippingAddress: order.ShippingAddress,
		TotalCents:      order.TotalCents,
		Total:           Amount(order.TotalCents),
		Lines:           lines,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func NewOrderPage(items []models.Order, cursor string) OrderPage {
	page := OrderPage{Items: make([]Order, 0, len(items)), Cursor: cursor}
	for i := range items {
		page.Items = append(page.Items, NewOrder(&items[i]))
	}
	return page
}
