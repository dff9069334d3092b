package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
)

// sessionedTransport scripts the capital wire exchange: logins hand out
// fresh tokens, and price reads 401 until the second token is presented.
type sessionedTransport struct {
	mu         sync.Mutex
	logins     int
	priceCalls int
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func (t *sessionedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/session"):
		t.logins++
		if t.logins == 1 {
			return jsonResponse(200, `{"cst":"tok-expired"}`), nil
		}
		return jsonResponse(200, `{"cst":"tok-fresh"}`), nil
	case strings.Contains(req.URL.Path, "/prices/"):
		t.priceCalls++
		if req.Header.Get("CST") != "tok-fresh" {
			return jsonResponse(401, `{"errorCode":"error.security.token-invalid"}`), nil
		}
		return jsonResponse(200, `{"bid":1.0868,"offer":1.0872}`), nil
	default:
		return jsonResponse(404, `{}`), nil
	}
}

// The first price call carries a token the broker no longer accepts; the
// provider must re-authenticate once and replay the call before surfacing
// anything to the gateway.
func TestCapitalReauthenticatesOnceOn401(t *testing.T) {
	cfg := &broker.CredentialConfig{
		Kind:       "capital",
		APIKey:     "k",
		Identifier: "i",
		Password:   "p",
		Testnet:    true,
	}
	require.NoError(t, cfg.Validate())
	p, err := newCapitalProvider("cred-test", cfg)
	require.NoError(t, err)

	cp := p.(*capitalProvider)
	transport := &sessionedTransport{}
	cp.client.http.Transport = transport

	quote, err := cp.GetLatestPrice(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0868, quote.Bid, 1e-9)

	assert.Equal(t, 2, transport.logins, "initial login plus exactly one re-auth")
	assert.Equal(t, 2, transport.priceCalls, "the 401ed call is replayed exactly once")
}

// A broker that keeps answering 401 even after a fresh login must surface
// the error rather than loop.
func TestCapitalSurfaces401AfterSingleReauth(t *testing.T) {
	cfg := &broker.CredentialConfig{Kind: "capital", APIKey: "k", Identifier: "i", Password: "p", Testnet: true}
	p, err := newCapitalProvider("cred-test", cfg)
	require.NoError(t, err)
	cp := p.(*capitalProvider)

	calls := 0
	cp.client.http.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/session") {
			return jsonResponse(200, `{"cst":"tok"}`), nil
		}
		calls++
		return jsonResponse(401, `{}`), nil
	})

	_, err = cp.GetLatestPrice(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.True(t, isUnauthorized(err))
	assert.Equal(t, 2, calls, "one original attempt plus one replay, never more")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
