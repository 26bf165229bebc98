package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// Order is created once at checkout. Its lines are an immutable price snapshot.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;type:varchar(64);not null;uniqueIndex:ux_orders_order_number"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index:ix_orders_user_created,priority:1"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(32);not null;index:ix_orders_status"`
	ShippingAddress *string           `gorm:"column:shipping_address;type:text"`
	TotalCents      int64             `gorm:"column:total_cents;not null"`
	Lines           []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index:ix_orders_user_created,priority:2"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLine is a frozen price snapshot. ArtistID is nil for items without a seller account.
type OrderLine struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	Position       int            `gorm:"column:position;not null"`
	ItemType       enums.ItemType `gorm:"column:item_type;type:varchar(32);not null"`
	ItemID         uuid.UUID      `gorm:"column:item_id;type:uuid;not null"`
	ArtistID       *uuid.UUID     `gorm:"column:artist_id;type:uuid"`
	Quantity       int            `gorm:"column:quantity;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	SubtotalCents  int64          `gorm:"column:subtotal_cents;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
