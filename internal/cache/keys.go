package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"botfleet/internal/config"
)

// Namespace is the Redis key prefix for the platform.
const Namespace = "botfleet"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Price & Market Keys ----------------------------------------------------

// PriceLatestKey holds the latest bid/ask snapshot per epic.
func PriceLatestKey(epic string) string {
	return formatKey("price", "latest", epic)
}

// OHLCKey holds a cached candle window per (epic, timeframe, limit).
func OHLCKey(epic, timeframe string, limit int) string {
	return formatKey("ohlc", epic, timeframe, strconv.Itoa(limit))
}

// EpicKey holds the resolved symbol→epic mapping (24h TTL).
func EpicKey(broker, symbol string) string {
	return formatKey("epic", broker, symbol)
}

// --- Rate Coordinator Keys --------------------------------------------------

// RateCooldownKey marks a credential's 429 cooldown window so it survives a
// process restart across the api/orchestrator split.
func RateCooldownKey(credentialID string) string {
	return formatKey("rate", "cooldown", credentialID)
}

// --- Bot & Trade Keys -------------------------------------------------------

// BotExecLockKey is the short-lived one-execution-per-bot guard.
func BotExecLockKey(botID string) string {
	return formatKey("lock", "bot", botID)
}

// TradesRecentKey caches the recent-trades list per bot.
func TradesRecentKey(botID string) string {
	return formatKey("trades", "recent", botID)
}

// EvaluationsRecentKey caches the recent-evaluations list per bot.
func EvaluationsRecentKey(botID string) string {
	return formatKey("evaluations", "recent", botID)
}

// OrphanPositionsKey holds unattributed broker positions per credential.
func OrphanPositionsKey(credentialID string) string {
	return formatKey("orphans", credentialID)
}

// SnapshotKey caches the latest performance snapshot per credential.
func SnapshotKey(credentialID string) string {
	return formatKey("snapshot", credentialID)
}

// --- TTL Helpers ------------------------------------------------------------

// PriceTTL returns short-lived TTL for individual price keys.
func PriceTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// OHLCTTL returns the TTL for candle windows.
func OHLCTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// EpicTTL returns the TTL for symbol→epic mappings.
func EpicTTL() time.Duration {
	return 24 * time.Hour
}

// BotExecLockTTL bounds the execution guard so a crashed process cannot
// wedge a bot forever.
func BotExecLockTTL() time.Duration {
	return 5 * time.Minute
}

// TradesRecentTTL returns the TTL for recent trades lists.
func TradesRecentTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// EvaluationsRecentTTL returns the TTL for recent evaluation lists.
func EvaluationsRecentTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// OrphanPositionsTTL keeps orphan listings long enough for an operator to
// inspect them.
func OrphanPositionsTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLLong, 2)
}

// SnapshotTTL returns the TTL for performance snapshots.
func SnapshotTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// FormatCacheKey is exported for dynamic key construction when patterns
// are not covered by helpers.
func FormatCacheKey(parts ...string) string {
	return formatKey(parts...)
}

// BuildKeyWithSuffix appends an arbitrary suffix to an existing key.
func BuildKeyWithSuffix(baseKey, suffix string) string {
	if strings.TrimSpace(suffix) == "" {
		return baseKey
	}
	return fmt.Sprintf("%s:%s", baseKey, strings.TrimSpace(suffix))
}
