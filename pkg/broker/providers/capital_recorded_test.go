package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
	"botfleet/pkg/orcherr"
)

// cassetteCapital builds a capital provider whose HTTP transport replays a
// recorded fixture instead of hitting the broker.
func cassetteCapital(t *testing.T, cassette string) *capitalProvider {
	t.Helper()
	rec, err := recorder.NewAsMode("testdata/"+cassette, recorder.ModeReplaying, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Stop() })

	cfg := &broker.CredentialConfig{
		Kind:       "capital",
		APIKey:     "cassette-key",
		Identifier: "cassette-id",
		Password:   "cassette-pass",
		Testnet:    true,
	}
	require.NoError(t, cfg.Validate())
	p, err := newCapitalProvider("cred-test", cfg)
	require.NoError(t, err)

	cp := p.(*capitalProvider)
	cp.client.http.Transport = rec
	return cp
}

func TestCapitalRecorded_SessionThenPrice(t *testing.T) {
	p := cassetteCapital(t, "capital_price")
	gw := broker.NewGateway(p)

	quote, err := gw.GetLatestPrice(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0868, quote.Bid, 1e-9)
	assert.InDelta(t, 1.0872, quote.Ask, 1e-9)
}

func TestCapitalRecorded_RateLimitedCollapsesToUnavailable(t *testing.T) {
	p := cassetteCapital(t, "capital_rate_limited")
	gw := broker.NewGateway(p).WithRetryPolicy(2, time.Millisecond)

	_, err := gw.GetLatestPrice(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orcherr.ErrBrokerUnavailable), "exhausted retries collapse to ErrBrokerUnavailable, got %v", err)
}
