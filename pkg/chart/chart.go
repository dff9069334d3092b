// Package chart implements the Chart Pipeline: fetch
// OHLC, hand it to an out-of-process renderer, upload the resulting image to
// an object store (or fall back to local disk), all within a 45s budget.
// A placeholder render is never an acceptable input to a trading decision.
package chart

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/broker"
	"botfleet/pkg/orcherr"
)

const pipelineBudget = 45 * time.Second

// Renderer is the out-of-process chart renderer collaborator, discoverable
// on configured endpoints with a fallback local spawn. Its wire response
// schema is intentionally not asserted beyond "try several known field
// names in order".
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (RenderResult, error)
}

// ObjectStore uploads chart bytes and returns a retrievable URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// RenderRequest is the renderer's input contract.
type RenderRequest struct {
	Symbol     string
	Timeframe  string
	Candles    []broker.Candle
	Indicators []IndicatorSpec
}

// RenderResult is the renderer's raw JSON response, heuristically decoded:
// the engine's schema has drifted across versions, so several field names
// are tried in order and the first non-empty one wins.
type RenderResult struct {
	ImageBase64 string
	Placeholder bool
}

// knownImageFields lists the field names tried in order when decoding a
// renderer response: callers must not rely on any one name.
var knownImageFields = []string{"image", "image_base64", "png", "data"}

// DecodeRenderResponse extracts image bytes from a renderer's raw JSON body
// using the heuristic field-name search.
func DecodeRenderResponse(raw []byte) (RenderResult, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return RenderResult{}, fmt.Errorf("chart: decode renderer response: %w", err)
	}
	if ph, ok := generic["placeholder"].(bool); ok && ph {
		return RenderResult{Placeholder: true}, nil
	}
	for _, field := range knownImageFields {
		if v, ok := generic[field].(string); ok && v != "" {
			return RenderResult{ImageBase64: v}, nil
		}
	}
	return RenderResult{Placeholder: true}, nil
}

// Pipeline wires OHLC retrieval, rendering, and upload.
type Pipeline struct {
	ohlc     func(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error)
	renderer Renderer
	store    ObjectStore
	localDir string
}

// New constructs a Pipeline. localDir is the fallback directory used when
// the object store upload fails.
func New(ohlc func(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]broker.Candle, error), renderer Renderer, store ObjectStore, localDir string) *Pipeline {
	return &Pipeline{ohlc: ohlc, renderer: renderer, store: store, localDir: localDir}
}

// Request is the chart pipeline's input.
type Request struct {
	BotID      string
	BotOwner   string
	Symbol     string
	Epic       string
	Timeframe  string
	Resolution string
	Indicators any // raw shape; normalised internally
	Count      int
}

// Result is returned on success; Unavailable is set (with no URL) when the
// pipeline times out or only a placeholder came back — the caller must
// proceed without an image or abort, never substitute the placeholder.
type Result struct {
	URL         string
	ImageBase64 string
	Unavailable bool
}

// Run executes the full pipeline within the 45s budget.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, pipelineBudget)
	defer cancel()

	candles, err := p.ohlc(ctx, req.Epic, req.Resolution, time.Time{}, time.Time{}, req.Count)
	if err != nil {
		return Result{}, fmt.Errorf("chart: fetch ohlc: %w", orcherr.ErrDataUnavailable)
	}

	indicators := NormaliseIndicators(req.Indicators)
	renderResult, err := p.renderer.Render(ctx, RenderRequest{
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		Candles:    candles,
		Indicators: indicators,
	})
	if ctx.Err() != nil {
		logx.Slowf("chart: pipeline timeout bot=%s symbol=%s", req.BotID, req.Symbol)
		return Result{Unavailable: true}, fmt.Errorf("chart: %w", orcherr.ErrChartGenerationFailed)
	}
	if err != nil {
		return Result{Unavailable: true}, fmt.Errorf("chart: render: %w: %v", orcherr.ErrChartGenerationFailed, err)
	}
	if renderResult.Placeholder || renderResult.ImageBase64 == "" {
		logx.Slowf("chart: placeholder result bot=%s symbol=%s", req.BotID, req.Symbol)
		return Result{Unavailable: true}, nil
	}

	imgBytes, err := base64.StdEncoding.DecodeString(renderResult.ImageBase64)
	if err != nil {
		return Result{Unavailable: true}, fmt.Errorf("chart: decode image: %w", orcherr.ErrChartGenerationFailed)
	}

	key := fmt.Sprintf("%s/charts/%s.png", req.BotOwner, uuid.NewString())
	url, err := p.store.Upload(ctx, key, imgBytes)
	if err != nil {
		localURL, localErr := p.writeLocal(key, imgBytes)
		if localErr != nil {
			return Result{Unavailable: true}, fmt.Errorf("chart: upload and local fallback both failed: %w / %v", err, localErr)
		}
		logx.Slowf("chart: object store upload failed, using local fallback bot=%s err=%v", req.BotID, err)
		return Result{URL: localURL, ImageBase64: renderResult.ImageBase64}, nil
	}
	return Result{URL: url, ImageBase64: renderResult.ImageBase64}, nil
}

func (p *Pipeline) writeLocal(key string, data []byte) (string, error) {
	if p.localDir == "" {
		return "", fmt.Errorf("chart: no local fallback directory configured")
	}
	full := filepath.Join(p.localDir, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return "file://" + full, nil
}
