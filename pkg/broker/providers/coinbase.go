package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"botfleet/pkg/broker"
)

func init() {
	broker.RegisterProvider("coinbase", newCoinbaseProvider)
}

// coinbaseProvider signs requests with the CB-ACCESS-SIGN scheme
// (timestamp + method + path + body, HMAC-SHA256 with the base64 secret).
// The signature carries its own timestamp, so a 401 is answered by
// re-signing and replaying the call once rather than refreshing a session.
type coinbaseProvider struct {
	client     *restClient
	apiKey     string
	apiSecret  string
	passphrase string
}

func newCoinbaseProvider(credentialID string, cfg *broker.CredentialConfig) (broker.Provider, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.Passphrase == "" {
		return nil, fmt.Errorf("coinbase provider %s: api_key, api_secret, passphrase are required", credentialID)
	}
	base := "https://api.exchange.coinbase.com"
	if cfg.Testnet {
		base = "https://api-public.sandbox.exchange.coinbase.com"
	}
	p := &coinbaseProvider{
		client:     newRESTClient(base, cfg.Timeout, map[string]string{"CB-ACCESS-KEY": cfg.APIKey, "CB-ACCESS-PASSPHRASE": cfg.Passphrase}),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
	}
	p.client.sign = p.stampSignature
	return p, nil
}

// stampSignature sets the per-request CB-ACCESS-SIGN/TIMESTAMP headers.
func (p *coinbaseProvider) stampSignature(req *http.Request, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	req.Header.Set("CB-ACCESS-SIGN", p.sign(ts, req.Method, req.URL.RequestURI(), string(body)))
}

func (p *coinbaseProvider) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(p.apiSecret))
	mac.Write([]byte(ts + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *coinbaseProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return symbol + "-USD", nil
}

func (p *coinbaseProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	var out struct {
		Bid string `json:"bid"`
		Ask string `json:"ask"`
	}
	if err := p.client.do(ctx, "GET", "/products/"+epic+"/ticker", nil, &out); err != nil {
		return broker.Quote{}, err
	}
	bid, _ := strconv.ParseFloat(out.Bid, 64)
	ask, _ := strconv.ParseFloat(out.Ask, 64)
	return broker.Quote{Bid: bid, Ask: ask, TS: time.Now()}, nil
}

func (p *coinbaseProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	var raw [][]float64
	path := fmt.Sprintf("/products/%s/candles?granularity=%s", epic, resolution)
	if err := p.client.do(ctx, "GET", path, nil, &raw); err != nil {
		return nil, err
	}
	candles := make([]broker.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		candles = append(candles, broker.Candle{
			TS: time.Unix(int64(row[0]), 0), Low: row[1], High: row[2], Open: row[3], Close: row[4],
		})
	}
	return candles, nil
}

func (p *coinbaseProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	side := "buy"
	if dir == broker.DirectionSell {
		side = "sell"
	}
	req := map[string]any{"product_id": epic, "side": side, "size": fmt.Sprintf("%.8f", size), "type": "market"}
	var out struct {
		ID string `json:"id"`
	}
	err := doReauth(ctx, nil, func() error {
		return p.client.do(ctx, "POST", "/orders", req, &out)
	})
	if err != nil {
		return broker.OpenResult{}, err
	}
	return broker.OpenResult{DealID: out.ID, Status: broker.StatusAccepted}, nil
}

func (p *coinbaseProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	err := doReauth(ctx, nil, func() error {
		return p.client.do(ctx, "DELETE", "/orders/"+dealID, nil, nil)
	})
	if err != nil {
		return "", err
	}
	return broker.StatusFilled, nil
}

func (p *coinbaseProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var raw []struct {
		ID        string `json:"id"`
		ProductID string `json:"product_id"`
		Side      string `json:"side"`
		Size      string `json:"size"`
		Price     string `json:"price"`
		CreatedAt string `json:"created_at"`
	}
	err := doReauth(ctx, nil, func() error {
		return p.client.do(ctx, "GET", "/fills", nil, &raw)
	})
	if err != nil {
		return nil, err
	}
	result := make([]broker.BrokerPosition, 0, len(raw))
	for _, row := range raw {
		qty, _ := strconv.ParseFloat(row.Size, 64)
		price, _ := strconv.ParseFloat(row.Price, 64)
		dir := broker.DirectionBuy
		if row.Side == "sell" {
			dir = broker.DirectionSell
		}
		created, _ := time.Parse(time.RFC3339, row.CreatedAt)
		result = append(result, broker.BrokerPosition{
			DealID: row.ID, Epic: row.ProductID, Symbol: row.ProductID,
			Direction: dir, Quantity: qty, EntryPrice: price, CreatedDate: created,
		})
	}
	return result, nil
}

func (p *coinbaseProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	var out struct {
		Status      string `json:"status"`
		BaseMinSize string `json:"base_min_size"`
	}
	if err := p.client.do(ctx, "GET", "/products/"+epic, nil, &out); err != nil {
		return broker.MarketDetail{}, err
	}
	minSize, _ := strconv.ParseFloat(out.BaseMinSize, 64)
	return broker.MarketDetail{Tradeable: out.Status == "online", MinDealSize: minSize}, nil
}
