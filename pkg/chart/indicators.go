package chart

import "strings"

// IndicatorSpec is the canonical form every incoming indicator request is
// normalised to: lowercase type name -> parameter map. Accepted inputs are
// an array of strings, an array of {type,params} objects, or a map, with
// synonyms reconciled (window<->period, fastPeriod<->fast, ...).
type IndicatorSpec struct {
	Type   string
	Params map[string]any
}

// synonymGroups lists parameter-name synonyms that must collapse onto a
// single canonical key, first name in each group wins.
var synonymGroups = [][]string{
	{"period", "window"},
	{"fast", "fastPeriod", "fast_period"},
	{"slow", "slowPeriod", "slow_period"},
	{"signal", "signalPeriod", "signal_period"},
}

// NormaliseIndicators accepts any of the three incoming shapes described on
// IndicatorSpec and returns a canonicalised slice, with MACD always split
// into macd_line/macd_signal/macd_histogram for rendering.
func NormaliseIndicators(raw any) []IndicatorSpec {
	var specs []IndicatorSpec
	switch v := raw.(type) {
	case []string:
		for _, name := range v {
			specs = append(specs, IndicatorSpec{Type: canonicalType(name), Params: map[string]any{}})
		}
	case []any:
		for _, item := range v {
			specs = append(specs, fromAny(item))
		}
	case map[string]any:
		for name, params := range v {
			spec := IndicatorSpec{Type: canonicalType(name), Params: canonicalParams(params)}
			specs = append(specs, spec)
		}
	}
	return expandMACD(specs)
}

func fromAny(item any) IndicatorSpec {
	switch v := item.(type) {
	case string:
		return IndicatorSpec{Type: canonicalType(v), Params: map[string]any{}}
	case map[string]any:
		typeName, _ := v["type"].(string)
		params, _ := v["params"].(map[string]any)
		if params == nil {
			params = map[string]any{}
			for k, val := range v {
				if k != "type" {
					params[k] = val
				}
			}
		}
		return IndicatorSpec{Type: canonicalType(typeName), Params: canonicalParams(params)}
	default:
		return IndicatorSpec{}
	}
}

func canonicalType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func canonicalParams(params any) map[string]any {
	raw, ok := params.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[canonicalKey(k)] = v
	}
	return out
}

func canonicalKey(key string) string {
	for _, group := range synonymGroups {
		for _, alias := range group {
			if alias == key {
				return group[0]
			}
		}
	}
	return key
}

// expandMACD splits any "macd" spec into three render-ready series so the
// renderer subprocess never has to special-case the combined indicator.
func expandMACD(specs []IndicatorSpec) []IndicatorSpec {
	out := make([]IndicatorSpec, 0, len(specs))
	for _, s := range specs {
		if s.Type != "macd" {
			out = append(out, s)
			continue
		}
		out = append(out,
			IndicatorSpec{Type: "macd_line", Params: s.Params},
			IndicatorSpec{Type: "macd_signal", Params: s.Params},
			IndicatorSpec{Type: "macd_histogram", Params: s.Params},
		)
	}
	return out
}
