package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"botfleet/pkg/broker"
	"botfleet/pkg/ledger"
	"botfleet/pkg/marketcache"
)

// credentialRuntime bundles the mutable state kept one instance per
// credential: a broker Gateway (session, retry/backoff), a market-data
// Cache, and a position Ledger. Lifecycle is tied to the credential's
// first use and disposed via Runtimes.Dispose.
type credentialRuntime struct {
	gateway *broker.Gateway
	cache   *marketcache.Cache
	ledger  *ledger.Ledger
}

// Runtimes lazily constructs and caches credentialRuntime instances. It is
// the one place in the module that owns a map of per-credential mutable
// state; everything else (pkg/ratecoord.Coordinator) manages its own
// per-credential state internally behind a single shared instance. The
// state here is explicitly owned by this struct, not scattered in
// package-level vars.
type Runtimes struct {
	mu   sync.Mutex
	bots BotRepo
	live map[string]*credentialRuntime
}

// NewRuntimes constructs an empty registry backed by bots for credential
// lookups.
func NewRuntimes(bots BotRepo) *Runtimes {
	return &Runtimes{bots: bots, live: make(map[string]*credentialRuntime)}
}

// get returns (constructing if necessary) the runtime for credentialID.
func (r *Runtimes) get(ctx context.Context, credentialID string) (*credentialRuntime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.live[credentialID]; ok {
		return rt, nil
	}

	cfg, err := r.bots.LoadCredential(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load credential %s: %w", credentialID, err)
	}
	provider, err := broker.BuildProvider(credentialID, &cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build provider for credential %s: %w", credentialID, err)
	}
	gw := broker.NewGateway(provider)
	rt := &credentialRuntime{
		gateway: gw,
		cache:   marketcache.New(gw),
		ledger:  ledger.New(),
	}
	r.live[credentialID] = rt
	return rt, nil
}

// Dispose releases a credential's runtime state, e.g. on credential delete
// or process shutdown.
func (r *Runtimes) Dispose(credentialID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, credentialID)
}
