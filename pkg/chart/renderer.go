package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// HTTPRenderer talks to the out-of-process chart engine over HTTP. The
// engine is discovered by probing endpoints in order; when none answers and
// a spawn command is configured, the renderer starts the engine itself and
// retries the probe.
type HTTPRenderer struct {
	endpoints []string
	spawnCmd  []string
	client    *http.Client

	mu       sync.Mutex
	resolved string
	spawned  bool
}

// NewHTTPRenderer constructs a renderer probing endpoints in order.
// spawnCmd (argv shape, may be nil) is the fallback local engine command.
func NewHTTPRenderer(endpoints []string, spawnCmd []string) *HTTPRenderer {
	return &HTTPRenderer{
		endpoints: endpoints,
		spawnCmd:  spawnCmd,
		client:    &http.Client{Timeout: 40 * time.Second},
	}
}

// renderPayload is the wire request. Field names follow the engine's
// loosely-specified schema; the response is decoded heuristically
// (DecodeRenderResponse) because the engine's reply schema has drifted.
type renderPayload struct {
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Candles    []renderCandle  `json:"candles"`
	Indicators []IndicatorSpec `json:"indicators,omitempty"`
}

type renderCandle struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	endpoint, err := r.endpoint(ctx)
	if err != nil {
		return RenderResult{}, err
	}

	payload := renderPayload{
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		Indicators: req.Indicators,
	}
	for _, c := range req.Candles {
		payload.Candles = append(payload.Candles, renderCandle{
			TS: c.TS.UnixMilli(), Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return RenderResult{}, fmt.Errorf("chart: encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return RenderResult{}, fmt.Errorf("chart: build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.forget(endpoint)
		return RenderResult{}, fmt.Errorf("chart: render call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return RenderResult{}, fmt.Errorf("chart: read render response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.forget(endpoint)
		return RenderResult{}, fmt.Errorf("chart: render engine status %d", resp.StatusCode)
	}
	return DecodeRenderResponse(raw)
}

// endpoint returns the first endpoint answering a health probe, spawning the
// local engine once if nothing answers.
func (r *HTTPRenderer) endpoint(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != "" {
		return r.resolved, nil
	}
	if ep := r.probeLocked(ctx); ep != "" {
		r.resolved = ep
		return ep, nil
	}
	if len(r.spawnCmd) > 0 && !r.spawned {
		r.spawned = true
		cmd := exec.Command(r.spawnCmd[0], r.spawnCmd[1:]...)
		if err := cmd.Start(); err != nil {
			logx.Errorf("chart: spawn fallback engine: %v", err)
		} else {
			logx.Infof("chart: spawned fallback engine pid=%d", cmd.Process.Pid)
			go func() { _ = cmd.Wait() }()
			time.Sleep(2 * time.Second)
			if ep := r.probeLocked(ctx); ep != "" {
				r.resolved = ep
				return ep, nil
			}
		}
	}
	return "", fmt.Errorf("chart: no render engine reachable on %s", strings.Join(r.endpoints, ", "))
}

func (r *HTTPRenderer) probeLocked(ctx context.Context) string {
	for _, ep := range r.endpoints {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, healthURL(ep), nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := r.client.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return ep
		}
	}
	return ""
}

func (r *HTTPRenderer) forget(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == endpoint {
		r.resolved = ""
	}
}

func healthURL(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(trimmed, "/render") {
		return strings.TrimSuffix(trimmed, "/render") + "/health"
	}
	return trimmed + "/health"
}
