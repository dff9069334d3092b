// Package ratecoord implements per-credential admission control for broker
// calls: an in-flight cap bounding concurrency, a token-bucket minimum inter-call gap, a
// cooldown window triggered by 429s, and a priority-respecting FIFO of
// waiting callers.
package ratecoord

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"

	"botfleet/pkg/orcherr"
)

// Outcome is reported by the caller on Release so the coordinator can react
// to rate-limit signals from the broker.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeFailure
)

// Lease is returned by Acquire and must be released exactly once.
type Lease struct {
	credentialID string
	issuedAt     time.Time
	released     bool
}

// Config tunes one credential's admission policy.
type Config struct {
	MaxConcurrent int           // maximum leases in flight at once; default 1 for shared credentials
	MinGap        time.Duration // minimum inter-call spacing; default 500ms
	BaseCooldown  time.Duration // base jittered backoff on RATE_LIMITED; default 2s
}

func (c Config) normalise() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.MinGap <= 0 {
		c.MinGap = 500 * time.Millisecond
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = 2 * time.Second
	}
	return c
}

// request is a waiting Acquire call parked in the priority queue.
type request struct {
	priority int
	arrival  time.Time
	ready    chan *Lease
	index    int
}

// requestQueue is a priority-FIFO: higher priority first, ties by arrival.
type requestQueue []*request

func (q requestQueue) Len() int { return len(q) }
func (q requestQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].arrival.Before(q[j].arrival)
}
func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *requestQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}
func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return r
}

// credentialState is the mutex-guarded admission state for one credential.
type credentialState struct {
	mu            sync.Mutex
	cfg           Config
	limiter       *rate.Limiter
	inFlight      int
	lastStartedAt time.Time
	cooldownUntil time.Time
	cooldownStep  int
	waiters       requestQueue
}

// Coordinator manages admission state for many credentials.
type Coordinator struct {
	mu    sync.Mutex
	creds map[string]*credentialState
}

// New constructs an empty Coordinator. Per-credential state is created
// lazily on first Acquire and lives until the credential is disposed;
// disposal is the caller's responsibility via Dispose.
func New() *Coordinator {
	return &Coordinator{creds: make(map[string]*credentialState)}
}

// Configure sets (or resets) the admission policy for a credential. Safe to
// call before first use; calling it later only affects new admissions.
func (c *Coordinator) Configure(credentialID string, cfg Config) {
	cfg = cfg.normalise()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(credentialID)
	st.mu.Lock()
	st.cfg = cfg
	st.limiter = rate.NewLimiter(rate.Every(cfg.MinGap), 1)
	st.mu.Unlock()
}

func (c *Coordinator) stateLocked(credentialID string) *credentialState {
	st, ok := c.creds[credentialID]
	if !ok {
		cfg := Config{}.normalise()
		st = &credentialState{
			cfg:     cfg,
			limiter: rate.NewLimiter(rate.Every(cfg.MinGap), 1),
		}
		c.creds[credentialID] = st
	}
	return st
}

func (c *Coordinator) state(credentialID string) *credentialState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(credentialID)
}

// Dispose releases a credential's state, e.g. on credential delete.
func (c *Coordinator) Dispose(credentialID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.creds, credentialID)
}

// Acquire blocks until admission is granted, deadline expires, or ctx is
// cancelled. priority: higher wins ties; within a priority, arrival order
// wins (FIFO).
func (c *Coordinator) Acquire(ctx context.Context, credentialID string, priority int, deadline time.Time) (*Lease, error) {
	st := c.state(credentialID)

	for {
		st.mu.Lock()
		now := time.Now()
		if now.Before(st.cooldownUntil) {
			wait := st.cooldownUntil.Sub(now)
			st.mu.Unlock()
			if !sleepOrDone(ctx, wait, deadline) {
				return nil, orcherr.ErrAdmissionTimeout
			}
			continue
		}
		if st.inFlight < st.cfg.MaxConcurrent && st.limiter.AllowN(now, 1) {
			st.inFlight++
			st.lastStartedAt = now
			st.mu.Unlock()
			return &Lease{credentialID: credentialID, issuedAt: now}, nil
		}
		// Park as a waiter; the releasing goroutine will wake the highest
		// priority one. We still double-check deadline via a timer below.
		r := &request{priority: priority, arrival: now, ready: make(chan *Lease, 1)}
		heap.Push(&st.waiters, r)
		st.mu.Unlock()

		timeout := time.Until(deadline)
		if timeout <= 0 {
			c.abandon(st, r)
			return nil, orcherr.ErrAdmissionTimeout
		}
		select {
		case lease := <-r.ready:
			if lease == nil {
				return nil, orcherr.ErrAdmissionTimeout
			}
			return lease, nil
		case <-time.After(timeout):
			c.abandon(st, r)
			return nil, orcherr.ErrAdmissionTimeout
		case <-ctx.Done():
			c.abandon(st, r)
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) abandon(st *credentialState, r *request) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if r.index >= 0 && r.index < len(st.waiters) && st.waiters[r.index] == r {
		heap.Remove(&st.waiters, r.index)
	}
}

func sleepOrDone(ctx context.Context, wait time.Duration, deadline time.Time) bool {
	if time.Now().Add(wait).After(deadline) {
		return false
	}
	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a lease. outcome=OutcomeRateLimited extends the cooldown
// with jittered exponential backoff (2s, 4s, 8s, ...).
func (c *Coordinator) Release(lease *Lease, outcome Outcome) {
	if lease == nil || lease.released {
		return
	}
	lease.released = true
	st := c.state(lease.credentialID)

	st.mu.Lock()
	if st.inFlight > 0 {
		st.inFlight--
	}
	if outcome == OutcomeRateLimited {
		st.cooldownStep++
		backoff := st.cfg.BaseCooldown << uint(st.cooldownStep-1)
		jitter := time.Duration(float64(backoff) * 0.25 * jitterFraction())
		st.cooldownUntil = time.Now().Add(backoff + jitter)
		logx.Slowf("ratecoord: credential=%s rate limited, cooldown until=%s", lease.credentialID, st.cooldownUntil)
	} else if outcome == OutcomeSuccess {
		st.cooldownStep = 0
	}

	var wake *request
	if st.waiters.Len() > 0 && st.inFlight < st.cfg.MaxConcurrent {
		wake = heap.Pop(&st.waiters).(*request)
		st.inFlight++
		st.lastStartedAt = time.Now()
		st.limiter.AllowN(st.lastStartedAt, 1)
	}
	st.mu.Unlock()

	if wake != nil {
		wake.ready <- &Lease{credentialID: lease.credentialID, issuedAt: time.Now()}
	}
}

func jitterFraction() float64 {
	// deterministic-enough jitter without requiring math/rand seeding
	// elsewhere in the process; callers needing cryptographic jitter should
	// not use this coordinator's cooldown timer as a security boundary.
	return float64(time.Now().UnixNano()%1000) / 1000.0
}
