// Package strategy implements the strategy rule parser: a deterministic,
// regex-tier compiler turning free-form strategy prose into an ordered
// []domain.ParsedRule. No LLM is involved; identical input always
// compiles to identical rules.
package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"botfleet/pkg/domain"
	"botfleet/pkg/orcherr"
)

// Version is bumped whenever the parsing rules below change shape, per
// the "parser output is versioned" design note — callers persist
// this alongside a Strategy's cached rules so a version bump can trigger
// re-evaluation.
const Version = 1

// candleMinutesByTimeframe maps the timeframe table (minutes).
var candleMinutesByTimeframe = map[string]int{
	"M1":  1,
	"M5":  5,
	"M15": 15,
	"M30": 30,
	"H1":  60,
	"H4":  240,
	"D1":  1440,
}

const (
	maxCandles      = 100
	maxProfitPct    = 50
	maxLossPct      = 20
	defaultTrailPct = 2
	defaultScalePct = 50
)

var (
	// The subject between "close" and "after" is optional: "close after 3
	// candles" and "close the trade after 3 candles" both compile.
	reCloseAfterCandles = regexp.MustCompile(`close(?: .*?)? after (\d+(?:\.\d+)?) candles?`)
	reCloseAfterTime    = regexp.MustCompile(`close(?: .*?)? after (\d+(?:\.\d+)?) (minutes?|hours?)`)
	reTakeProfit        = regexp.MustCompile(`(?:take profit|close) (?:at|reaches?) (\d+(?:\.\d+)?) ?%`)
	reStopLoss          = regexp.MustCompile(`(?:stop loss|close) (?:at|exceeds?) (\d+(?:\.\d+)?) ?%`)
	reTrailStop         = regexp.MustCompile(`trail(?:ing)? stop(?: (?:of|by) (\d+(?:\.\d+)?) ?%)?`)
	reScaleOut          = regexp.MustCompile(`(?:scale out|partial close) (?:at|when) (\d+(?:\.\d+)?) ?%`)

	reRiskPerTrade = regexp.MustCompile(`risk (\d+(?:\.\d+)?) ?% per trade`)
	reRiskStopLoss = regexp.MustCompile(`stop loss (\d+(?:\.\d+)?) ?%`)
	reRiskTakeProf = regexp.MustCompile(`take profit (\d+(?:\.\d+)?) ?%`)

	punctuation = regexp.MustCompile(`[^\w\s%.]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// RiskDefaults holds the separately-extracted risk-management phrases
// names: "risk N% per trade", "stop loss N%", "take profit N%".
type RiskDefaults struct {
	RiskPerTradePct float64
	StopLossPct     float64
	TakeProfitPct   float64
}

// Parse compiles descriptionText against primaryTimeframe into an ordered
// []domain.ParsedRule plus separately-extracted RiskDefaults. It is
// deterministic and idempotent: identical input always yields an identical
// rule sequence round-trip property.
func Parse(descriptionText, primaryTimeframe string) ([]domain.ParsedRule, RiskDefaults, error) {
	var rules []domain.ParsedRule
	var risk RiskDefaults

	lines := strings.Split(descriptionText, "\n")
	for _, raw := range lines {
		line := normaliseLine(raw)
		if line == "" {
			continue
		}

		if m := reCloseAfterCandles.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if value > maxCandles {
				return nil, risk, fmt.Errorf("strategy: candles %.0f exceeds max %d: %w", value, maxCandles, orcherr.ErrInvalidInput)
			}
			rules = append(rules, domain.ParsedRule{
				Type:     domain.RuleExitAfterCandles,
				Trigger:  domain.Trigger{Value: value, Unit: domain.UnitCandles},
				Action:   domain.ActionCloseFull,
				Priority: 8,
				Enabled:  true,
			})
			continue
		}

		if m := reCloseAfterTime.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			unit := domain.UnitMinutes
			if strings.HasPrefix(m[2], "hour") {
				unit = domain.UnitHours
			}
			rules = append(rules, domain.ParsedRule{
				Type:     domain.RuleExitAfterTime,
				Trigger:  domain.Trigger{Value: value, Unit: unit},
				Action:   domain.ActionCloseFull,
				Priority: 7,
				Enabled:  true,
			})
			continue
		}

		if m := reTakeProfit.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if value > maxProfitPct {
				return nil, risk, fmt.Errorf("strategy: profit target %.1f%% exceeds max %d%%: %w", value, maxProfitPct, orcherr.ErrInvalidInput)
			}
			rules = append(rules, domain.ParsedRule{
				Type:     domain.RuleExitOnProfit,
				Trigger:  domain.Trigger{Value: value, Unit: domain.UnitPercent, Condition: "greater_than"},
				Action:   domain.ActionCloseFull,
				Priority: 9,
				Enabled:  true,
			})
			continue
		}

		if m := reStopLoss.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if value > maxLossPct {
				return nil, risk, fmt.Errorf("strategy: loss limit %.1f%% exceeds max %d%%: %w", value, maxLossPct, orcherr.ErrInvalidInput)
			}
			rules = append(rules, domain.ParsedRule{
				Type:     domain.RuleExitOnLoss,
				Trigger:  domain.Trigger{Value: -value, Unit: domain.UnitPercent, Condition: "less_than"},
				Action:   domain.ActionCloseFull,
				Priority: 10,
				Enabled:  true,
			})
			continue
		}

		if m := reTrailStop.FindStringSubmatch(line); m != nil {
			value := float64(defaultTrailPct)
			if m[1] != "" {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					value = v
				}
			}
			rules = append(rules, domain.ParsedRule{
				Type:     domain.RuleTrailStop,
				Trigger:  domain.Trigger{Value: value, Unit: domain.UnitPercent},
				Action:   domain.ActionModifySL,
				Priority: 6,
				Enabled:  true,
			})
			continue
		}

		if m := reScaleOut.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			rules = append(rules, domain.ParsedRule{
				Type:       domain.RuleScaleOut,
				Trigger:    domain.Trigger{Value: value, Unit: domain.UnitPercent, Condition: "greater_than"},
				Action:     domain.ActionClosePartial,
				Parameters: map[string]float64{"fraction": float64(defaultScalePct) / 100},
				Priority:   5,
				Enabled:    true,
			})
			continue
		}

		if m := reRiskPerTrade.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				risk.RiskPerTradePct = v
			}
		}
		if m := reRiskStopLoss.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				risk.StopLossPct = v
			}
		}
		if m := reRiskTakeProf.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				risk.TakeProfitPct = v
			}
		}
	}

	if err := resolveCandleRules(rules, primaryTimeframe); err != nil {
		return nil, risk, err
	}

	return sortByPriorityDesc(rules), risk, nil
}

// normaliseLine lower-cases and strips punctuation other than '%' and '.',
// "case-folded, punctuation stripped" algorithm.
func normaliseLine(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// resolveCandleRules rejects EXIT_AFTER_CANDLES rules whose timeframe is
// unrecognised; the rule's Trigger.Value stays in candle units, and the
// candle→minutes conversion happens at evaluation time (pkg/orchestrator's
// Position Monitor) mapping table.
func resolveCandleRules(rules []domain.ParsedRule, primaryTimeframe string) error {
	for _, r := range rules {
		if r.Type != domain.RuleExitAfterCandles {
			continue
		}
		if _, ok := candleMinutesByTimeframe[strings.ToUpper(primaryTimeframe)]; !ok {
			return fmt.Errorf("strategy: unrecognised timeframe %q: %w", primaryTimeframe, orcherr.ErrInvalidInput)
		}
	}
	return nil
}

// CandleMinutes returns the minutes-per-candle for a timeframe, or false if
// unrecognised.
func CandleMinutes(timeframe string) (int, bool) {
	m, ok := candleMinutesByTimeframe[strings.ToUpper(timeframe)]
	return m, ok
}

func sortByPriorityDesc(rules []domain.ParsedRule) []domain.ParsedRule {
	out := make([]domain.ParsedRule, len(rules))
	copy(out, rules)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Priority < out[j].Priority {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
