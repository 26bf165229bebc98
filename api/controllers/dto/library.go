package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

type PurchasedItem struct {
	ID             uuid.UUID      `json:"id"`
	ItemType       enums.ItemType `json:"item_type"`
	ItemID         uuid.UUID      `json:"item_id"`
	OrderID        uuid.UUID      `json:"order_id"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	PurchasedAt    time.Time      `json:"purchased_at"`
}

type Library struct {
	Songs       []PurchasedItem `json:"songs"`
	Albums      []PurchasedItem `json:"albums"`
	Merchandise []PurchasedItem `json:"merchandise"`
	Total       int             `json:"total"`
}

func NewLibrary(lib *library.Library) Library {
	return Library{
		Songs:       newPurchasedItems(lib.Songs),
		Albums:      newPurchasedItems(lib.Albums),
		Merchandise: newPurchasedItems(lib.Merchandise),
		Total:       lib.Total,
	}
}

func newPurchasedItems(items []models.PurchasedItem) []PurchasedItem {
	out := make([]PurchasedItem, 0, len(items))
	for _, item := range items {
		out = append(out, PurchasedItem{
			ID:             item.ID,
			ItemType:       item.ItemType,
			ItemID:         item.ItemID,
			OrderID:        item.OrderID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			PurchasedAt:    item.PurchasedAt,
		})
	}
	return out
}
