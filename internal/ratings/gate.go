package ratings

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const gateDependency = "entitlements"

type purchaseChecker interface {
	HasPurchased(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (bool, error)
}

type fallbackRecorder interface {
	IncFallback(dependency string)
}

// Gate asks the entitlement service whether a user owns an item before a first rating.
// A definite "no" rejects; any failure to get an answer lets the rating through.
type Gate struct {
	checker purchaseChecker
	metrics fallbackRecorder
	logg    *logger.Logger
}

// NewGate builds the gate. metrics may be nil.
func NewGate(checker purchaseChecker, metrics fallbackRecorder, logg *logger.Logger) *Gate {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gate{checker: checker, metrics: metrics, logg: logg}
}

// HasPurchasedItem fails open: a timeout, transport error or malformed answer returns true.
func (g *Gate) HasPurchasedItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) bool {
	if g.checker == nil {
		g.fallback(ctx, userID, itemType, itemID, "entitlement checker not configured")
		return true
	}
	owned, err := g.checker.HasPurchased(ctx, userID, itemType, itemID)
	if err != nil {
		g.fallback(ctx, userID, itemType, itemID, err.Error())
		return true
	}
	return owned
}

func (g *Gate) fallback(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID, reason string) {
	if g.metrics != nil {
		g.metrics.IncFallback(gateDependency)
	}
	g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
		"dependency": gateDependency,
		"user_id":    userID,
		"item_type":  itemType,
		"item_id":    itemID,
		"error":      reason,
	}), "entitlement check unavailable, allowing rating")
}
