package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// PurchasedItem is an entitlement: the row's existence is the ownership. OrderID and PaymentID are audit only.
type PurchasedItem struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID      `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_purchased_items_user_item,priority:1"`
	ItemType       enums.ItemType `gorm:"column:item_type;type:varchar(32);not null;uniqueIndex:ux_purchased_items_user_item,priority:2"`
	ItemID         uuid.UUID      `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_purchased_items_user_item,priority:3"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	PaymentID      uuid.UUID      `gorm:"column:payment_id;type:uuid;not null"`
	Quantity       int            `gorm:"column:quantity;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	PurchasedAt    time.Time      `gorm:"column:purchased_at;autoCreateTime"`
}

func (p *PurchasedItem) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
