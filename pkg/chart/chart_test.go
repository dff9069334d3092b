package chart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
)

func TestNormaliseIndicatorsArrayOfStrings(t *testing.T) {
	specs := NormaliseIndicators([]string{"RSI", "EMA"})
	require.Len(t, specs, 2)
	require.Equal(t, "rsi", specs[0].Type)
	require.Equal(t, "ema", specs[1].Type)
}

func TestNormaliseIndicatorsMapWithSynonyms(t *testing.T) {
	specs := NormaliseIndicators(map[string]any{
		"sma": map[string]any{"window": 20},
	})
	require.Len(t, specs, 1)
	require.Equal(t, "sma", specs[0].Type)
	require.Equal(t, 20, specs[0].Params["period"])
	_, hasWindow := specs[0].Params["window"]
	require.False(t, hasWindow, "window must collapse onto the canonical 'period' key")
}

func TestNormaliseIndicatorsExpandsMACD(t *testing.T) {
	specs := NormaliseIndicators([]any{
		map[string]any{"type": "macd", "fastPeriod": 12},
	})
	require.Len(t, specs, 3)
	types := []string{specs[0].Type, specs[1].Type, specs[2].Type}
	require.ElementsMatch(t, []string{"macd_line", "macd_signal", "macd_histogram"}, types)
	require.Equal(t, 12, specs[0].Params["fast"])
}

func TestDecodeRenderResponseTriesKnownFieldsInOrder(t *testing.T) {
	res, err := DecodeRenderResponse([]byte(`{"png":"aGVsbG8="}`))
	require.NoError(t, err)
	require.Equal(t, "aGVsbG8=", res.ImageBase64)
	require.False(t, res.Placeholder)
}

func TestDecodeRenderResponsePlaceholderFlag(t *testing.T) {
	res, err := DecodeRenderResponse([]byte(`{"placeholder": true}`))
	require.NoError(t, err)
	require.True(t, res.Placeholder)
}

func TestDecodeRenderResponseNoKnownFieldIsPlaceholder(t *testing.T) {
	res, err := DecodeRenderResponse([]byte(`{"unexpected_field": "x"}`))
	require.NoError(t, err)
	require.True(t, res.Placeholder)
}

type fakeRenderer struct {
	result RenderResult
	err    error
	delay  time.Duration
}

func (f *fakeRenderer) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return RenderResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeStore struct {
	fail bool
}

func (f *fakeStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if f.fail {
		return "", errUploadFailed
	}
	return "https://objects.example/" + key, nil
}

var errUploadFailed = &chartTestError{"upload failed"}

type chartTestError struct{ msg string }

func (e *chartTestError) Error() string { return e.msg }

func fakeOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error) {
	return []broker.Candle{{Close: 100}}, nil
}

func TestPipelinePlaceholderIsNeverSubstituted(t *testing.T) {
	p := New(fakeOHLC, &fakeRenderer{result: RenderResult{Placeholder: true}}, &fakeStore{}, "")
	res, err := p.Run(context.Background(), Request{BotID: "b1", BotOwner: "u1", Symbol: "BTCUSD", Epic: "BTCUSD", Count: 10})
	require.NoError(t, err)
	require.True(t, res.Unavailable)
	require.Empty(t, res.URL)
}

func TestPipelineFallsBackToLocalOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	p := New(fakeOHLC, &fakeRenderer{result: RenderResult{ImageBase64: "aGVsbG8="}}, &fakeStore{fail: true}, dir)
	res, err := p.Run(context.Background(), Request{BotID: "b1", BotOwner: "u1", Symbol: "BTCUSD", Epic: "BTCUSD", Count: 10})
	require.NoError(t, err)
	require.False(t, res.Unavailable)
	require.Contains(t, res.URL, "file://")
}
