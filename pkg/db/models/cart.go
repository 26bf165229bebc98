package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Cart is the single mutable cart owned by a user.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_carts_user_id"`
	TotalCents int64      `gorm:"column:total_cents;not null;default:0"`
	Lines      []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartLine is unique per (cart, item type, item id).
type CartLine struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID      `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_lines_item,priority:1"`
	ItemType       enums.ItemType `gorm:"column:item_type;type:varchar(32);not null;uniqueIndex:ux_cart_lines_item,priority:2"`
	ItemID         uuid.UUID      `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_cart_lines_item,priority:3"`
	ArtistID       *uuid.UUID     `gorm:"column:artist_id;type:uuid"`
	Quantity       int            `gorm:"column:quantity;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *CartLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// SubtotalCents returns unit price times quantity.
func (l CartLine) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}
