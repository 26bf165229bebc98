package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Cart is the API view of a user's cart.
type Cart struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TotalCents int64      `json:"total_cents"`
	Total      string     `json:"total"`
	Lines      []CartLine `json:"lines"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartLine struct {
	ItemType       enums.ItemType `json:"item_type"`
	ItemID         uuid.UUID      `json:"item_id"`
	ArtistID       *uuid.UUID     `json:"artist_id,omitempty"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	SubtotalCents  int64          `json:"subtotal_cents"`
}

func NewCart(cart *models.Cart) Cart {
	lines := make([]CartLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, CartLine{
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			ArtistID:       line.ArtistID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents(),
		})
	}
	return Cart{
		ID:         cart.ID,
		UserID:     cart.UserID,
		TotalCents: cart.TotalCents,
		Total:      Amount(cart.TotalCents),
		Lines:      lines,
		UpdatedAt:  cart.UpdatedAt,
	}
}
