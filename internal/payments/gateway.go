package payments

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// ChargeRequest is what the gateway sees for one processing cycle.
type ChargeRequest struct {
	TransactionID string
	AmountCents   int64
	Method        enums.PaymentMethod
	CardBIN       string
	Attempt       int
}

// ChargeResult is the gateway verdict. A decline is a normal result, not an error.
type ChargeResult struct {
	Approved      bool
	Reference     string
	DeclineReason string
}

// Gateway charges a payment. Callers must not assume the outcome before Charge returns.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

const (
	declineTestCard = "card declined by issuer"
	declineRandom   = "payment declined by processor"
)

// SimulatedGateway stands in for a card processor: cards whose BIN starts with the
// decline prefix always fail, everything else succeeds with a fixed probability
// after a random latency.
type SimulatedGateway struct {
	declinePrefix      string
	successProbability float64
	minLatency         time.Duration
	maxLatency         time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulatedGateway builds the gateway from payments config.
func NewSimulatedGateway(cfg config.PaymentsConfig) *SimulatedGateway {
	return &SimulatedGateway{
		declinePrefix:      strings.TrimSpace(cfg.DeclineCardPrefix),
		successProbability: cfg.SuccessProbability,
		minLatency:         cfg.GatewayMinLatency,
		maxLatency:         cfg.GatewayMaxLatency,
		rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSource swaps the random source, used by tests to pin outcomes.
func (g *SimulatedGateway) WithSource(src rand.Source) *SimulatedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rand = rand.New(src)
	return g
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	roll, latency := g.draw()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ChargeResult{}, fmt.Errorf("gateway call aborted: %w", ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return ChargeResult{}, fmt.Errorf("gateway call aborted: %w", err)
	}

	if g.declinePrefix != "" && req.Method.RequiresCard() && strings.HasPrefix(req.CardBIN, g.declinePrefix) {
		return ChargeResult{DeclineReason: declineTestCard}, nil
	}
	if roll >= g.successProbability {
		return ChargeResult{DeclineReason: declineRandom}, nil
	}
	return ChargeResult{Approved: true, Reference: newGatewayReference()}, nil
}

func (g *SimulatedGateway) draw() (float64, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roll := g.rand.Float64()
	latency := g.minLatency
	if spread := g.maxLatency - g.minLatency; spread > 0 {
		latency += time.Duration(g.rand.Int63n(int64(spread)))
	}
	return roll, latency
}

func newGatewayReference() string {
	return "GW-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
