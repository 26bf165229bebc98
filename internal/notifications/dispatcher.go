package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/money"
	"github.com/angelmondragon/trackvault-backend/pkg/push"
)

type titleResolver interface {
	Title(ctx context.Context, itemType enums.ItemType, itemID uuid.UUID, fallback string) string
}

type pusher interface {
	Send(ctx context.Context, msg push.Message) error
}

type outboundStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	MarkSent(ctx context.Context, notificationID uuid.UUID, now time.Time) error
}

// Dispatcher fans purchase lifecycle events out to buyers and artists.
// Every send is independent and failures are logged, never returned.
type Dispatcher struct {
	repo    outboundStore
	catalog titleResolver
	push    pusher
	logg    *logger.Logger
	now     func() time.Time
}

// NewDispatcher wires the fan-out. catalog and push may be nil; titles then fall back
// to generic descriptors and notifications stay unsent.
func NewDispatcher(repo outboundStore, catalog titleResolver, pushClient pusher, logg *logger.Logger) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{
		repo:    repo,
		catalog: catalog,
		push:    pushClient,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

type delivery struct {
	recipient     uuid.UUID
	kind          enums.NotificationType
	title         string
	message       string
	referenceID   uuid.UUID
	referenceType enums.ReferenceType
}

// NotifyPurchase tells the buyer what they bought and each distinct artist what they sold.
func (d *Dispatcher) NotifyPurchase(ctx context.Context, order *models.Order, payment *models.Payment) {
	if order == nil || payment == nil {
		return
	}
	titles := d.resolveTitles(ctx, order.Lines)

	deliveries := []delivery{{
		recipient:     order.UserID,
		kind:          enums.NotificationTypePurchaseCompleted,
		title:         "Purchase complete",
		message:       fmt.Sprintf("Order %s: %s. Total %s.", order.OrderNumber, strings.Join(titles, ", "), formatCents(payment.AmountCents)),
		referenceID:   order.ID,
		referenceType: enums.ReferenceTypeOrder,
	}}
	for _, group := range groupByArtist(order.Lines, titles) {
		deliveries = append(deliveries, delivery{
			recipient:     group.artistID,
			kind:          enums.NotificationTypeItemSold,
			title:         "You made a sale",
			message:       fmt.Sprintf("Sold in order %s: %s. Revenue %s.", order.OrderNumber, strings.Join(group.titles, ", "), formatCents(group.totalCents)),
			referenceID:   order.ID,
			referenceType: enums.ReferenceTypeOrder,
		})
	}
	d.dispatch(ctx, "purchase", deliveries)
}

// NotifyFailedPayment tells the buyer a payment attempt was declined.
func (d *Dispatcher) NotifyFailedPayment(ctx context.Context, order *models.Order, payment *models.Payment) {
	if order == nil || payment == nil {
		return
	}
	reason := "the payment was declined"
	if payment.ErrorMessage != nil && *payment.ErrorMessage != "" {
		reason = *payment.ErrorMessage
	}
	d.dispatch(ctx, "payment_failed", []delivery{{
		recipient:     payment.UserID,
		kind:          enums.NotificationTypePaymentFailed,
		title:         "Payment failed",
		message:       fmt.Sprintf("Payment %s for order %s failed: %s. You can retry the payment.", payment.TransactionID, order.OrderNumber, reason),
		referenceID:   payment.ID,
		referenceType: enums.ReferenceTypePayment,
	}})
}

// NotifyRefund tells the buyer about the refund and each artist which sales were reversed.
func (d *Dispatcher) NotifyRefund(ctx context.Context, order *models.Order, payment *models.Payment) {
	if order == nil || payment == nil {
		return
	}
	titles := d.resolveTitles(ctx, order.Lines)

	deliveries := []delivery{{
		recipient:     payment.UserID,
		kind:          enums.NotificationTypeRefundProcessed,
		title:         "Refund processed",
		message:       fmt.Sprintf("%s was refunded for order %s.", formatCents(payment.AmountCents), order.OrderNumber),
		referenceID:   payment.ID,
		referenceType: enums.ReferenceTypePayment,
	}}
	for _, group := range groupByArtist(order.Lines, titles) {
		deliveries = append(deliveries, delivery{
			recipient:     group.artistID,
			kind:          enums.NotificationTypeSaleRefunded,
			title:         "Sale refunded",
			message:       fmt.Sprintf("Order %s was refunded: %s.", order.OrderNumber, strings.Join(group.titles, ", ")),
			referenceID:   order.ID,
			referenceType: enums.ReferenceTypeOrder,
		})
	}
	d.dispatch(ctx, "refund", deliveries)
}

// NotifyOrderStatusChange tells the buyer their order moved.
func (d *Dispatcher) NotifyOrderStatusChange(ctx context.Context, order *models.Order, previous enums.OrderStatus) {
	if order == nil {
		return
	}
	d.dispatch(ctx, "order_status", []delivery{{
		recipient:     order.UserID,
		kind:          enums.NotificationTypeOrderStatusChanged,
		title:         "Order updated",
		message:       fmt.Sprintf("Order %s moved from %s to %s.", order.OrderNumber, previous, order.Status),
		referenceID:   order.ID,
		referenceType: enums.ReferenceTypeOrder,
	}})
}

func (d *Dispatcher) dispatch(ctx context.Context, event string, deliveries []delivery) {
	var errs error
	for _, item := range deliveries {
		if err := d.send(ctx, item); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s to %s: %w", item.kind, item.recipient, err))
		}
	}
	if errs == nil {
		return
	}
	failed := multierr.Errors(errs)
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
		"dependency": "notifications",
		"event":      event,
		"failed":     len(failed),
		"attempted":  len(deliveries),
		"error":      errs.Error(),
	}), "notification fan-out partially failed")
}

// send persists the in-app record, then pushes it. A panic in either step is
// converted to an error so one recipient cannot break the rest of the fan-out.
func (d *Dispatcher) send(ctx context.Context, item delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification send panicked: %v", r)
		}
	}()

	refID := item.referenceID
	refType := item.referenceType
	notification := &models.Notification{
		UserID:        item.recipient,
		Type:          item.kind,
		Title:         item.title,
		Message:       item.message,
		ReferenceID:   &refID,
		ReferenceType: &refType,
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if d.push == nil {
		return nil
	}
	if err := d.push.Send(ctx, push.Message{
		NotificationID: notification.ID,
		UserID:         item.recipient,
		Type:           string(item.kind),
		Title:          item.title,
		Body:           item.message,
		ReferenceID:    &refID,
	}); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := d.repo.MarkSent(ctx, notification.ID, d.now()); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (d *Dispatcher) resolveTitles(ctx context.Context, lines []models.OrderLine) []string {
	titles := make([]string, len(lines))
	for i, line := range lines {
		fallback := genericTitle(line.ItemType)
		if d.catalog == nil {
			titles[i] = fallback
			continue
		}
		titles[i] = d.catalog.Title(ctx, line.ItemType, line.ItemID, fallback)
	}
	return titles
}

type artistGroup struct {
	artistID   uuid.UUID
	titles     []string
	totalCents int64
}

// groupByArtist keeps first-seen artist order and skips lines without an artist.
func groupByArtist(lines []models.OrderLine, titles []string) []artistGroup {
	index := map[uuid.UUID]int{}
	var groups []artistGroup
	for i, line := range lines {
		if line.ArtistID == nil || *line.ArtistID == uuid.Nil {
			continue
		}
		pos, ok := index[*line.ArtistID]
		if !ok {
			pos = len(groups)
			index[*line.ArtistID] = pos
			groups = append(groups, artistGroup{artistID: *line.ArtistID})
		}
		groups[pos].titles = append(groups[pos].titles, titles[i])
		groups[pos].totalCents += line.UnitPriceCents * int64(line.Quantity)
	}
	return groups
}

func genericTitle(itemType enums.ItemType) string {
	switch itemType {
	case enums.ItemTypeSong:
		return "a song"
	case enums.ItemTypeAlbum:
		return "an album"
	case enums.ItemTypeMerchandise:
		return "a merchandise item"
	default:
		return "an item"
	}
}

func formatCents(cents int64) string {
	return "$" + money.FromCents(cents).StringFixed(2)
}
