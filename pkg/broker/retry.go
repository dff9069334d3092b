package broker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/orcherr"
)

// RetryableError lets a Provider implementation tell the gateway wrapper
// whether a failure is a rate limit (429) or a transient upstream failure
// (5xx/timeout) worth retrying, versus a terminal error worth surfacing
// immediately.
type RetryableError interface {
	error
	RateLimited() bool
	Transient() bool
}

// Gateway wraps a Provider with the shared deadline/retry/backoff policy:
// 60s default deadline (30s for price reads), exponential backoff
// 2s -> 4s -> 8s capped at 3 retries on 429/5xx, collapsing final failure
// to ErrBrokerUnavailable.
type Gateway struct {
	provider     Provider
	callDeadline time.Duration
	priceTimeout time.Duration
	maxRetries   int
	baseBackoff  time.Duration

	epics *epicCache
}

// NewGateway wraps provider with the default retry/timeout policy.
func NewGateway(provider Provider) *Gateway {
	return &Gateway{
		provider:     provider,
		callDeadline: 60 * time.Second,
		priceTimeout: 30 * time.Second,
		maxRetries:   3,
		baseBackoff:  2 * time.Second,
		epics:        newEpicCache(24 * time.Hour),
	}
}

// WithRetryPolicy overrides the retry count and backoff base, e.g. for
// tests replaying recorded fixtures where real backoff waits add nothing.
func (g *Gateway) WithRetryPolicy(maxRetries int, baseBackoff time.Duration) *Gateway {
	if maxRetries >= 0 {
		g.maxRetries = maxRetries
	}
	if baseBackoff > 0 {
		g.baseBackoff = baseBackoff
	}
	return g
}

// ResolveEpic resolves symbol to a broker epic, caching the result for 24h
// and the reverse mapping On failure it returns the best
// candidate tried along with an error so the caller may still attempt trades.
func (g *Gateway) ResolveEpic(ctx context.Context, symbol string) (string, error) {
	if epic, ok := g.epics.lookup(symbol); ok {
		return epic, nil
	}

	candidates := epicCandidates(symbol)
	var lastCandidate string
	for _, candidate := range candidates {
		lastCandidate = candidate
		detail, err := withRetry(g, ctx, g.callDeadline, func(cctx context.Context) (MarketDetail, error) {
			return g.provider.MarketDetails(cctx, candidate)
		})
		if err != nil {
			continue
		}
		if detail.Tradeable {
			g.epics.store(symbol, candidate)
			return candidate, nil
		}
	}

	logx.Slowf("broker: epic resolution exhausted candidates symbol=%s best_guess=%s", symbol, lastCandidate)
	return lastCandidate, errEpicUnresolved
}

var errEpicUnresolved = errors.New("epic resolution: no candidate verified tradeable")

func (g *Gateway) GetLatestPrice(ctx context.Context, epic string) (Quote, error) {
	return withRetry(g, ctx, g.priceTimeout, func(cctx context.Context) (Quote, error) {
		return g.provider.GetLatestPrice(cctx, epic)
	})
}

func (g *Gateway) GetOHLC(ctx context.Context, epic, resolution string, from, to time.Time, count int) ([]Candle, error) {
	return withRetry(g, ctx, g.callDeadline, func(cctx context.Context) ([]Candle, error) {
		return g.provider.GetOHLC(cctx, epic, resolution, from, to, count)
	})
}

func (g *Gateway) OpenPosition(ctx context.Context, epic string, dir Direction, size float64, sl, tp *float64) (OpenResult, error) {
	return withRetry(g, ctx, g.callDeadline, func(cctx context.Context) (OpenResult, error) {
		return g.provider.OpenPosition(cctx, epic, dir, size, sl, tp)
	})
}

func (g *Gateway) ClosePosition(ctx context.Context, dealID string, dir Direction, size float64) (Status, error) {
	return withRetry(g, ctx, g.callDeadline, func(cctx context.Context) (Status, error) {
		return g.provider.ClosePosition(cctx, dealID, dir, size)
	})
}

func (g *Gateway) ListPositions(ctx context.Context) ([]BrokerPosition, error) {
	return withRetry(g, ctx, g.callDeadline, func(cctx context.Context) ([]BrokerPosition, error) {
		return g.provider.ListPositions(cctx)
	})
}

func (g *Gateway) MarketDetails(ctx context.Context, epic string) (MarketDetail, error) {
	return withRetry(g, ctx, g.callDeadline, func(cctx context.Context) (MarketDetail, error) {
		return g.provider.MarketDetails(cctx, epic)
	})
}

// withRetry enforces the per-call deadline and the 429/5xx backoff ladder.
// re-authentication on 401 is the Provider's own responsibility (it owns the
// session); the gateway only retries rate-limit/transient classes.
func withRetry[T any](g *Gateway, ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := call(callCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var retryable RetryableError
		if !errors.As(err, &retryable) {
			return zero, err
		}
		if !retryable.RateLimited() && !retryable.Transient() {
			return zero, err
		}
		if attempt == g.maxRetries {
			break
		}
		backoff := g.baseBackoff << attempt
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		wait := backoff + jitter
		logx.WithContext(ctx).Errorf("broker: retrying after error=%v attempt=%d backoff=%s", err, attempt+1, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, errBrokerUnavailableWrap(lastErr)
}

func errBrokerUnavailableWrap(cause error) error {
	if cause == nil {
		return orcherr.ErrBrokerUnavailable
	}
	return errJoin(orcherr.ErrBrokerUnavailable, cause)
}

func errJoin(a, b error) error {
	return errors.Join(a, b)
}
