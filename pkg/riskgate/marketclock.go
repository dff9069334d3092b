package riskgate

import "time"

// AssetClass drives the market-timing table.
type AssetClass string

const (
	AssetCrypto    AssetClass = "crypto"
	AssetForex     AssetClass = "forex"
	AssetIndices   AssetClass = "indices"
	AssetStocks    AssetClass = "stocks"
	AssetCommodity AssetClass = "commodities"
)

// MarketOpen implements the market-timing table, evaluated in
// UTC. Crypto is always open; forex closes Friday 22:00 UTC through Sunday
// 22:00 UTC; indices/stocks/commodities trade weekdays 08:00-22:00 UTC.
func MarketOpen(class AssetClass, now time.Time) bool {
	now = now.UTC()
	switch class {
	case AssetCrypto:
		return true
	case AssetForex:
		return forexOpen(now)
	default:
		return weekdayWindow(now, 8, 22)
	}
}

func forexOpen(now time.Time) bool {
	wd := now.Weekday()
	hour := now.Hour()
	switch wd {
	case time.Saturday:
		return false
	case time.Sunday:
		return hour >= 22
	case time.Friday:
		return hour < 22
	default:
		return true
	}
}

func weekdayWindow(now time.Time, startHour, endHour int) bool {
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := now.Hour()
	return h >= startHour && h < endHour
}
