// Package ledger implements the Position Ledger: attributing
// broker-reported positions (which carry no bot identity) to the owning
// bot when many bots share one credential.
package ledger

import (
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/broker"
	"botfleet/pkg/domain"
)

// recoveryWindow bounds how old an orphan position may be for recovery.
const recoveryWindow = 10 * time.Minute

// matchWindow bounds the time/symbol/size match heuristic.
const matchWindow = 5 * time.Minute

// TradeCandidate is the minimal view of a Trade the ledger needs to match
// or attribute against, avoiding a dependency on the persistence layer.
type TradeCandidate struct {
	BotID        string
	Symbol       string
	Direction    domain.Direction
	Quantity     float64
	Status       domain.TradeStatus
	CreatedAt    time.Time
	BrokerDealID string
}

// CapacityCheck reports whether bot is below its maxOpenTrades, consulted
// before any orphan recovery invariant.
type CapacityCheck func(botID string) (belowCapacity bool)

// Ledger is the authoritative brokerDealId→botId map for one credential.
// All writes are serialised behind a single exclusive lock scoped to the
// credential.
type Ledger struct {
	mu      sync.Mutex
	owners  map[string]domain.PositionOwnership
	orphans map[string]time.Time // brokerDealId -> first-seen time, for logging/metrics only
}

// New constructs an empty per-credential Ledger.
func New() *Ledger {
	return &Ledger{
		owners:  make(map[string]domain.PositionOwnership),
		orphans: make(map[string]time.Time),
	}
}

// Owner returns the bot owning dealID, if any.
func (l *Ledger) Owner(dealID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.owners[dealID]
	return o.BotID, ok
}

// Record registers a known owner, e.g. immediately after OpenPosition
// succeeds for a bot-initiated trade (direct deal-id provenance).
func (l *Ledger) Record(dealID, botID string, provenance domain.OwnerProvenance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.owners[dealID]; exists {
		// A deal id is owned by at most one bot, forever; never overwrite.
		return
	}
	l.owners[dealID] = domain.PositionOwnership{
		BrokerDealID: dealID,
		BotID:        botID,
		Provenance:   provenance,
		AttributedAt: time.Now(),
	}
	delete(l.orphans, dealID)
}

// Attribute implements the three-step algorithm for a broker
// position with no known local owner: direct deal-id match (already
// covered by Owner/Record), then time/symbol/size match against
// candidates, then refusal (logged orphan, no attribution, no capacity
// debit). candidates should be restricted by the caller to PENDING or
// recently-OPEN trades on the same credential.
func (l *Ledger) Attribute(pos broker.BrokerPosition, candidates []TradeCandidate, capacity CapacityCheck) (botID string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if o, exists := l.owners[pos.DealID]; exists {
		return o.BotID, true
	}

	age := time.Since(pos.CreatedDate)
	if age > recoveryWindow {
		l.logOrphan(pos.DealID)
		return "", false
	}

	var best *TradeCandidate
	for i := range candidates {
		cand := candidates[i]
		if cand.Symbol != pos.Symbol || string(cand.Direction) != string(pos.Direction) {
			continue
		}
		if !floatsClose(cand.Quantity, pos.Quantity) {
			continue
		}
		if cand.Status != domain.TradeStatusPending && cand.Status != domain.TradeStatusOpen {
			continue
		}
		delta := pos.CreatedDate.Sub(cand.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > matchWindow {
			continue
		}
		if capacity != nil && !capacity(cand.BotID) {
			continue
		}
		best = &candidates[i]
		break
	}

	if best == nil {
		l.logOrphan(pos.DealID)
		return "", false
	}

	l.owners[pos.DealID] = domain.PositionOwnership{
		BrokerDealID: pos.DealID,
		BotID:        best.BotID,
		Provenance:   domain.ProvenanceTimeSymbolSize,
		AttributedAt: time.Now(),
	}
	delete(l.orphans, pos.DealID)
	return best.BotID, true
}

func (l *Ledger) logOrphan(dealID string) {
	if _, seen := l.orphans[dealID]; !seen {
		l.orphans[dealID] = time.Now()
		logx.Slowf("ledger: orphan position deal_id=%s ownership ambiguous, no attribution", dealID)
	}
}

// OrphanCount reports how many positions are currently unattributed,
// useful for monitoring/alerting.
func (l *Ledger) OrphanCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orphans)
}

func floatsClose(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	// 0.5% relative tolerance accommodates broker-side rounding of lot sizes.
	tolerance := 0.005 * maxFloat(a, b)
	if tolerance <= 0 {
		tolerance = 1e-9
	}
	return d <= tolerance
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
