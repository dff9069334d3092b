package providers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"botfleet/pkg/broker"
)

func init() {
	broker.RegisterProvider("custom", newCustomProvider)
}

// customProvider is the "bring your own wallet-signed venue" broker kind.
// Request authentication is a raw ECDSA signature over the request payload
// hash, against an arbitrary REST base URL supplied via the credential's
// custom map.
type customProvider struct {
	client     *restClient
	privateKey *ecdsa.PrivateKey
	address    string
}

func newCustomProvider(credentialID string, cfg *broker.CredentialConfig) (broker.Provider, error) {
	baseURL := cfg.Custom["base_url"]
	pkHex := cfg.Custom["private_key"]
	if baseURL == "" {
		return nil, fmt.Errorf("custom provider %s: custom.base_url is required", credentialID)
	}
	if pkHex == "" {
		return nil, fmt.Errorf("custom provider %s: custom.private_key is required", credentialID)
	}
	pk, err := crypto.HexToECDSA(trimHexPrefix(pkHex))
	if err != nil {
		return nil, fmt.Errorf("custom provider %s: invalid private_key: %w", credentialID, err)
	}
	address := crypto.PubkeyToAddress(pk.PublicKey).Hex()
	return &customProvider{
		client:     newRESTClient(baseURL, cfg.Timeout, map[string]string{"X-Wallet-Address": address}),
		privateKey: pk,
		address:    address,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// signPayload signs the keccak256 digest of payload; the venue verifies
// the recovered address against the credential's wallet.
func (p *customProvider) signPayload(payload []byte) (string, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, p.privateKey)
	if err != nil {
		return "", fmt.Errorf("custom provider: sign payload: %w", err)
	}
	return fmt.Sprintf("0x%x", sig), nil
}

func (p *customProvider) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	return symbol, nil
}

func (p *customProvider) GetLatestPrice(ctx context.Context, epic string) (broker.Quote, error) {
	var out struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	}
	if err := p.client.do(ctx, "GET", "/price/"+epic, nil, &out); err != nil {
		return broker.Quote{}, err
	}
	return broker.Quote{Bid: out.Bid, Ask: out.Ask, TS: time.Now()}, nil
}

func (p *customProvider) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	var out []broker.Candle
	path := fmt.Sprintf("/ohlc/%s?resolution=%s&count=%d", epic, resolution, count)
	if err := p.client.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *customProvider) OpenPosition(ctx context.Context, epic string, dir broker.Direction, size float64, sl, tp *float64) (broker.OpenResult, error) {
	req := map[string]any{"epic": epic, "direction": dir, "size": size, "address": p.address}
	sig, err := p.signPayload([]byte(fmt.Sprintf("%v", req)))
	if err != nil {
		return broker.OpenResult{}, err
	}
	req["signature"] = sig
	var out broker.OpenResult
	if err := p.client.do(ctx, "POST", "/positions", req, &out); err != nil {
		return broker.OpenResult{}, err
	}
	return out, nil
}

func (p *customProvider) ClosePosition(ctx context.Context, dealID string, dir broker.Direction, size float64) (broker.Status, error) {
	req := map[string]any{"dealId": dealID, "direction": dir, "size": size, "address": p.address}
	sig, err := p.signPayload([]byte(fmt.Sprintf("%v", req)))
	if err != nil {
		return "", err
	}
	req["signature"] = sig
	var out struct {
		Status broker.Status `json:"status"`
	}
	if err := p.client.do(ctx, "POST", "/positions/close", req, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (p *customProvider) ListPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var out []broker.BrokerPosition
	if err := p.client.do(ctx, "GET", "/positions?address="+p.address, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *customProvider) MarketDetails(ctx context.Context, epic string) (broker.MarketDetail, error) {
	var out broker.MarketDetail
	if err := p.client.do(ctx, "GET", "/markets/"+epic, nil, &out); err != nil {
		return broker.MarketDetail{}, err
	}
	return out, nil
}
