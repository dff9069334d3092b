package orchestrator

import (
	"strings"

	"botfleet/pkg/domain"
	"botfleet/pkg/riskgate"
)

// cryptoBases lists base currencies traded as crypto regardless of broker
// kind, used to classify a symbol for the riskgate market-timing table
// when the credential itself doesn't pin the asset class.
var cryptoBases = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "XRP": {}, "DOGE": {}, "ADA": {}, "BNB": {},
}

// forexPairs lists the common currency pairs traded as forex.
var forexPairs = map[string]struct{}{
	"EURUSD": {}, "GBPUSD": {}, "USDJPY": {}, "AUDUSD": {}, "USDCHF": {}, "USDCAD": {}, "NZDUSD": {},
}

// classifyAsset infers the riskgate.AssetClass for a (symbol, brokerKind)
// pair: binance/coinbase credentials are always crypto; capital/custom
// credentials are classified by symbol shape. Unrecognised symbols default
// to indices/stocks, the most conservative (narrowest trading window) class
// in the table.
func classifyAsset(symbol string, kind domain.BrokerKind) riskgate.AssetClass {
	switch kind {
	case domain.BrokerBinance, domain.BrokerCoinbase:
		return riskgate.AssetCrypto
	}

	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := forexPairs[sym]; ok {
		return riskgate.AssetForex
	}
	for base := range cryptoBases {
		if strings.HasPrefix(sym, base) {
			return riskgate.AssetCrypto
		}
	}
	return riskgate.AssetIndices
}
