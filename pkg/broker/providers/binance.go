package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"botfleet/pkg/broker"
)

func init() {
	broker.RegisterProvider("binance", newBinanceProvider)
}

// binanceProvider signs requests with HMAC-SHA256 over the query string, the
// scheme Binance's futures/spot REST API expects. There is no session to
// refresh: a 401 is answered by rebuilding the timestamped signature and
// replaying the call once.
type binanceProvider struct {
	client    *restClient
	secretKey string
}

func newBinanceProvider(credentialID string, cfg *broker.CredentialConfig) (broker.Provider, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("binance provider %s: api_key, secret_key are required", credentialID)
	}
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	return &binanceProvider{
		client:    newRESTClient(base, cfg.Timeout, map[string]string{"X-MBX-APIKEY": cfg.APIKey}),
		secretKey: cfg.SecretKey,
	}, nil
}

func (p *binanceProvider) sign(params url.Values) string {
	mac := hmac.New(sha256.New, []byte(p.secretKey))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *binanceProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return symbol, nil
}

func (p *binanceProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := p.client.do(ctx, "GET", "/fapi/v1/ticker/price?symbol="+epic, nil, &out); err != nil {
		return broker.Quote{}, err
	}
	px, _ := strconv.ParseFloat(out.Price, 64)
	return broker.Quote{Bid: px, Ask: px, TS: time.Now()}, nil
}

func (p *binanceProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	var raw [][]any
	path := fmt.Sprintf("/fapi/v1/klines?symbol=%s&interval=%s&limit=%d", epic, resolution, count)
	if err := p.client.do(ctx, "GET", path, nil, &raw); err != nil {
		return nil, err
	}
	candles := make([]broker.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		openMs, _ := row[0].(float64)
		o, _ := strconv.ParseFloat(row[1].(string), 64)
		h, _ := strconv.ParseFloat(row[2].(string), 64)
		l, _ := strconv.ParseFloat(row[3].(string), 64)
		c, _ := strconv.ParseFloat(row[4].(string), 64)
		candles = append(candles, broker.Candle{TS: time.UnixMilli(int64(openMs)), Open: o, High: h, Low: l, Close: c})
	}
	return candles, nil
}

func (p *binanceProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	var out struct {
		OrderID int64 `json:"orderId"`
	}
	err := doReauth(ctx, nil, func() error {
		params := url.Values{}
		params.Set("symbol", epic)
		params.Set("side", string(dir))
		params.Set("quantity", fmt.Sprintf("%.8f", size))
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", p.sign(params))
		return p.client.do(ctx, "POST", "/fapi/v1/order?"+params.Encode(), nil, &out)
	})
	if err != nil {
		return broker.OpenResult{}, err
	}
	return broker.OpenResult{DealID: strconv.FormatInt(out.OrderID, 10), Status: broker.StatusAccepted}, nil
}

func (p *binanceProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	err := doReauth(ctx, nil, func() error {
		params := url.Values{}
		params.Set("orderId", dealID)
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", p.sign(params))
		return p.client.do(ctx, "DELETE", "/fapi/v1/order?"+params.Encode(), nil, nil)
	})
	if err != nil {
		return "", err
	}
	return broker.StatusFilled, nil
}

func (p *binanceProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var raw []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		UpdateTime  int64  `json:"updateTime"`
	}
	err := doReauth(ctx, nil, func() error {
		params := url.Values{}
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", p.sign(params))
		return p.client.do(ctx, "GET", "/fapi/v2/positionRisk?"+params.Encode(), nil, &raw)
	})
	if err != nil {
		return nil, err
	}
	result := make([]broker.BrokerPosition, 0, len(raw))
	for _, row := range raw {
		qty, _ := strconv.ParseFloat(row.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(row.EntryPrice, 64)
		dir := broker.DirectionBuy
		if qty < 0 {
			dir = broker.DirectionSell
			qty = -qty
		}
		result = append(result, broker.BrokerPosition{
			DealID:      row.Symbol + ":" + strconv.FormatInt(row.UpdateTime, 10),
			Epic:        row.Symbol,
			Symbol:      row.Symbol,
			Direction:   dir,
			Quantity:    qty,
			EntryPrice:  entry,
			CreatedDate: time.UnixMilli(row.UpdateTime),
		})
	}
	return result, nil
}

func (p *binanceProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	var out struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := p.client.do(ctx, "GET", "/fapi/v1/exchangeInfo", nil, &out); err != nil {
		return broker.MarketDetail{}, err
	}
	for _, s := range out.Symbols {
		if s.Symbol == epic {
			return broker.MarketDetail{Tradeable: s.Status == "TRADING", MinDealSize: 0.001}, nil
		}
	}
	return broker.MarketDetail{Tradeable: false}, nil
}
