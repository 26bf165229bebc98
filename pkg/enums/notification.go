package enums

import "fmt"

// NotificationType enumerates user-facing notification categories.
type NotificationType string

const (
	NotificationTypePurchaseCompleted  NotificationType = "PURCHASE_COMPLETED"
	NotificationTypeItemSold           NotificationType = "ITEM_SOLD"
	NotificationTypePaymentFailed      NotificationType = "PAYMENT_FAILED"
	NotificationTypeRefundProcessed    NotificationType = "REFUND_PROCESSED"
	NotificationTypeSaleRefunded       NotificationType = "SALE_REFUNDED"
	NotificationTypeOrderStatusChanged NotificationType = "ORDER_STATUS_CHANGED"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePurchaseCompleted,
	NotificationTypeItemSold,
	NotificationTypePaymentFailed,
	NotificationTypeRefundProcessed,
	NotificationTypeSaleRefunded,
	NotificationTypeOrderStatusChanged,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// ReferenceType names the entity a notification points at.
type ReferenceType string

const (
	ReferenceTypeOrder   ReferenceType = "ORDER"
	ReferenceTypePayment ReferenceType = "PAYMENT"
)
