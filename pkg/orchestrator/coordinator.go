package orchestrator

import (
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Hard cap of 8 bots concurrently scheduled per credential, warn at >=5,
// and a jittered minimum gap between different bots on the same credential
// to smear broker load.
const (
	maxScheduledPerCredential  = 8
	warnScheduledPerCredential = 5
	defaultMinGapBetweenBots   = 30 * time.Second
)

// credentialQueue is the per-credential bookkeeping the Coordinator keeps:
// how many bot executions are currently admitted, and when the last one
// started (for the inter-bot min-gap).
type credentialQueue struct {
	activeCount int
	lastStartAt time.Time
}

// Coordinator implements the Bot Coordinator: the
// broker-of-brokers sitting in front of pkg/ratecoord that decides which
// bot runs next on which credential. It never talks to the broker itself;
// it only gates whether an evaluation attempt is allowed to begin.
type Coordinator struct {
	mu        sync.Mutex
	executing map[string]string // botID -> credentialID, while an execution is in flight
	queues    map[string]*credentialQueue
	minGap    time.Duration
}

// NewCoordinator constructs an empty Coordinator with the default min-gap.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		executing: make(map[string]string),
		queues:    make(map[string]*credentialQueue),
		minGap:    defaultMinGapBetweenBots,
	}
}

// WithMinGap overrides the default inter-bot gap (used by tests).
func (c *Coordinator) WithMinGap(d time.Duration) *Coordinator {
	if d > 0 {
		c.minGap = d
	}
	return c
}

func (c *Coordinator) queueFor(credentialID string) *credentialQueue {
	q, ok := c.queues[credentialID]
	if !ok {
		q = &credentialQueue{}
		c.queues[credentialID] = q
	}
	return q
}

// RequestBotExecution implements the admission policy:
//   - reject immediately if the bot is already executing (one execution per
//     bot at a time, ever);
//   - reject if the credential is at its hard cap of 8 concurrently
//     scheduled bots;
//   - reject if the jittered minimum inter-bot gap on this credential has
//     not elapsed.
//
// priority is accepted for forward compatibility with a future
// priority-aware queue; the current policy is a simple gate in front of the
// rate coordinator's own priority-FIFO.
func (c *Coordinator) RequestBotExecution(botID, credentialID string, priority int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.executing[botID]; inFlight {
		return false
	}

	q := c.queueFor(credentialID)
	if q.activeCount >= maxScheduledPerCredential {
		logx.Slowf("coordinator: credential=%s at hard cap (%d) bots, rejecting bot=%s", credentialID, maxScheduledPerCredential, botID)
		return false
	}

	now := time.Now()
	if !q.lastStartAt.IsZero() {
		gap := jitteredGap(c.minGap)
		if now.Sub(q.lastStartAt) < gap {
			return false
		}
	}

	c.executing[botID] = credentialID
	q.activeCount++
	q.lastStartAt = now
	if q.activeCount >= warnScheduledPerCredential {
		logx.Slowf("coordinator: credential=%s has %d bots concurrently scheduled (warn threshold %d)", credentialID, q.activeCount, warnScheduledPerCredential)
	}
	return true
}

// CompleteBotExecution releases the admission slot acquired by a prior
// successful RequestBotExecution. It is idempotent: calling it twice for
// the same bot (e.g. after a crash-and-restart replays the completion) is a
// no-op the second time, so a replayed completion never double-releases.
func (c *Coordinator) CompleteBotExecution(botID string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	credentialID, inFlight := c.executing[botID]
	if !inFlight {
		return
	}
	delete(c.executing, botID)
	if q, ok := c.queues[credentialID]; ok && q.activeCount > 0 {
		q.activeCount--
	}
	if !success {
		logx.Slowf("coordinator: bot=%s execution completed with failure", botID)
	}
}

// ActiveCount reports how many bots are currently scheduled on
// credentialID, used by the Scheduler's backpressure check.
func (c *Coordinator) ActiveCount(credentialID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.queues[credentialID]; ok {
		return q.activeCount
	}
	return 0
}

// jitteredGap applies up to 25% positive jitter to base, matching the
// jitter style used by pkg/ratecoord's cooldown backoff.
func jitteredGap(base time.Duration) time.Duration {
	jitter := time.Duration(float64(base) * 0.25 * (float64(time.Now().UnixNano()%1000) / 1000.0))
	return base + jitter
}
