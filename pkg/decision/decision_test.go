package decision

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/domain"
	"botfleet/pkg/llm"
	"botfleet/pkg/prompt"
)

type fakeClient struct {
	respJSON   string
	err        error
	delay      time.Duration
	lastPrompt string
}

func (f *fakeClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("unused")
}
func (f *fakeClient) ChatStructured(ctx context.Context, req *llm.ChatRequest, target any) (any, error) {
	if len(req.Messages) > 0 {
		f.lastPrompt = req.Messages[0].Content
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, json.Unmarshal([]byte(f.respJSON), target)
}
func (f *fakeClient) Close() error { return nil }

func price(v float64) *float64 { return &v }

func TestDecide_HoldOnHoldResponse(t *testing.T) {
	c := New(&fakeClient{respJSON: `{"decision":"HOLD","confidence":40,"reasoning":"choppy"}`}, "")
	out, err := c.Decide(context.Background(), Input{Symbol: "EURUSD", CurrentPrice: price(1.08)})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHold, out.Decision)
	assert.Nil(t, out.TradeParams)
}

func TestDecide_ExecuteTradeWithLivePrice(t *testing.T) {
	resp := `{"decision":"EXECUTE_TRADE","confidence":78,"reasoning":"breakout","direction":"BUY","order_type":"MARKET","quantity":1000,"stop_loss":1.083,"take_profit":1.09}`
	c := New(&fakeClient{respJSON: resp}, "")
	out, err := c.Decide(context.Background(), Input{Symbol: "EURUSD", CurrentPrice: price(1.087)})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionExecuteTrade, out.Decision)
	require.NotNil(t, out.TradeParams)
	assert.Equal(t, domain.DirectionBuy, out.TradeParams.Direction)
	assert.Equal(t, 1.087, out.UsedPrice)
	assert.Equal(t, 78, out.Confidence)
}

func TestDecide_NullPriceCapsConfidenceAndUsesFallback(t *testing.T) {
	resp := `{"decision":"EXECUTE_TRADE","confidence":90,"reasoning":"x","direction":"BUY","quantity":1}`
	c := New(&fakeClient{respJSON: resp}, "")
	close := 1.085
	out, err := c.Decide(context.Background(), Input{Symbol: "EURUSD", CurrentPrice: nil, RecentClose: &close})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionExecuteTrade, out.Decision)
	assert.LessOrEqual(t, out.Confidence, 65)
	assert.Equal(t, 1.085, out.UsedPrice)
}

func TestDecide_NoPriceAtAllFallsBackToStaticTable(t *testing.T) {
	resp := `{"decision":"EXECUTE_TRADE","confidence":90,"reasoning":"x","direction":"BUY","quantity":1}`
	c := New(&fakeClient{respJSON: resp}, "")
	out, err := c.Decide(context.Background(), Input{Symbol: "BTCUSD"})
	require.NoError(t, err)
	assert.Equal(t, 60000.0, out.UsedPrice)
	assert.LessOrEqual(t, out.Confidence, 65)
}

func TestDecide_NoPriceAnywhereHolds(t *testing.T) {
	resp := `{"decision":"EXECUTE_TRADE","confidence":90,"reasoning":"x"}`
	c := New(&fakeClient{respJSON: resp}, "")
	out, err := c.Decide(context.Background(), Input{Symbol: "UNKNOWNPAIR"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHold, out.Decision)
}

func TestDecide_TimeoutDegradesToHold(t *testing.T) {
	c := New(&fakeClient{delay: 2 * time.Second}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	out, err := c.Decide(ctx, Input{Symbol: "EURUSD", CurrentPrice: price(1.08)})
	require.Error(t, err)
	assert.Equal(t, domain.DecisionHold, out.Decision)
	assert.True(t, out.TimedOut)
}

func TestDecide_AbortPassesThrough(t *testing.T) {
	c := New(&fakeClient{respJSON: `{"decision":"ABORT","confidence":10,"reasoning":"bad data"}`}, "")
	out, err := c.Decide(context.Background(), Input{Symbol: "EURUSD"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAbort, out.Decision)
}

func TestDecide_OperatorTemplateRendersPrompt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decision.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Assess {{ .Symbol }} now. Risk: {{ .RiskPanel }}"), 0o600))
	tmpl, err := prompt.NewTemplate(path, nil)
	require.NoError(t, err)

	client := &fakeClient{respJSON: `{"decision":"HOLD","confidence":50,"reasoning":"x"}`}
	c := New(client, "").WithTemplate(tmpl)
	out, err := c.Decide(context.Background(), Input{Symbol: "EURUSD", CurrentPrice: price(1.08), RiskPanel: "calm"})
	require.NoError(t, err)
	assert.Equal(t, "Assess EURUSD now. Risk: calm", client.lastPrompt)
	assert.Equal(t, prompt.Digest(client.lastPrompt), out.PromptDigest)
}

func TestDecide_TemplateRenderFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decision.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .NoSuchField }}"), 0o600))
	tmpl, err := prompt.NewTemplate(path, nil)
	require.NoError(t, err)

	client := &fakeClient{respJSON: `{"decision":"HOLD","confidence":50,"reasoning":"x"}`}
	c := New(client, "").WithTemplate(tmpl)
	_, err = c.Decide(context.Background(), Input{Symbol: "EURUSD", CurrentPrice: price(1.08)})
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "trading-decision chain for EURUSD")
}
