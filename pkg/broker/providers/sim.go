package providers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"botfleet/pkg/broker"
)

func init() {
	broker.RegisterProvider("sim", newSimProvider)
}

const defaultSimFallbackPrice = 100.0

// simProvider is an in-memory paper-trading broker used for dry runs and
// tests: positions and mark prices live in mutex-guarded maps.
type simProvider struct {
	mu        sync.Mutex
	positions map[string]*broker.BrokerPosition
	marks     map[string]float64
	dealSeq   int
}

func newSimProvider(credentialID string, cfg *broker.CredentialConfig) (broker.Provider, error) {
	return &simProvider{
		positions: make(map[string]*broker.BrokerPosition),
		marks:     make(map[string]float64),
	}, nil
}

func (p *simProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return strings.ToUpper(symbol), nil
}

func (p *simProvider) markPrice(epic string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if px, ok := p.marks[epic]; ok {
		return px
	}
	px := defaultSimFallbackPrice + rand.Float64()*10
	p.marks[epic] = px
	return px
}

func (p *simProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	px := p.markPrice(epic)
	return broker.Quote{Bid: px * 0.999, Ask: px * 1.001, TS: time.Now()}, nil
}

func (p *simProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	px := p.markPrice(epic)
	if count <= 0 {
		count = 1
	}
	candles := make([]broker.Candle, 0, count)
	now := time.Now()
	for i := count; i > 0; i-- {
		candles = append(candles, broker.Candle{TS: now.Add(-time.Duration(i) * time.Minute), Open: px, High: px, Low: px, Close: px})
	}
	return candles, nil
}

func (p *simProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dealSeq++
	dealID := fmt.Sprintf("sim-%d", p.dealSeq)
	p.positions[dealID] = &broker.BrokerPosition{
		DealID: dealID, Epic: epic, Symbol: epic, Direction: dir,
		Quantity: size, EntryPrice: p.marks[epic], CreatedDate: time.Now(),
	}
	return broker.OpenResult{DealID: dealID, Status: broker.StatusFilled}, nil
}

func (p *simProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[dealID]
	if !ok {
		return "", fmt.Errorf("sim provider: unknown deal %s", dealID)
	}
	if size >= pos.Quantity {
		delete(p.positions, dealID)
	} else {
		pos.Quantity -= size
	}
	return broker.StatusFilled, nil
}

func (p *simProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]broker.BrokerPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *simProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	return broker.MarketDetail{Tradeable: true, MinDealSize: 0.0001}, nil
}
