package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"botfleet/pkg/domain"
	"botfleet/pkg/strategy"
)

// ruleCache memoises the deterministic strategy parse per strategy id. The
// cache key carries both the parser version and the description digest, so
// a strategy edit or a parser rule change invalidates the entry.
type ruleCache struct {
	mu      sync.RWMutex
	entries map[string]ruleEntry
}

type ruleEntry struct {
	version int
	digest  string
	rules   []domain.ParsedRule
}

func newRuleCache() *ruleCache {
	return &ruleCache{entries: make(map[string]ruleEntry)}
}

// RulesFor implements orchestrator.StrategyRules.
func (r *Repo) RulesFor(ctx context.Context, s domain.Strategy) ([]domain.ParsedRule, error) {
	timeframe := ""
	if len(s.Timeframes) > 0 {
		timeframe = s.Timeframes[0]
	}
	digest := descDigest(s.DescriptionText, timeframe)

	r.rules.mu.RLock()
	entry, ok := r.rules.entries[s.ID]
	r.rules.mu.RUnlock()
	if ok && entry.version == strategy.Version && entry.digest == digest {
		return entry.rules, nil
	}

	rules, _, err := strategy.Parse(s.DescriptionText, timeframe)
	if err != nil {
		return nil, err
	}

	r.rules.mu.Lock()
	r.rules.entries[s.ID] = ruleEntry{version: strategy.Version, digest: digest, rules: rules}
	r.rules.mu.Unlock()
	return rules, nil
}

func descDigest(description, timeframe string) string {
	sum := sha256.Sum256([]byte(timeframe + "\x00" + description))
	return hex.EncodeToString(sum[:8])
}
