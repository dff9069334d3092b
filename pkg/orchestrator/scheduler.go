// The Scheduler is a timer wheel keyed by (botId, timeframe): each
// registered bot becomes due at its timeframe cadence, and due ticks
// dispatch an evaluation attempt. Backpressure drops overdue ticks when the
// per-credential queue is saturated, and at most one tick is pending per
// bot — overdue ticks are dropped, never coalesced.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"botfleet/pkg/domain"
	"botfleet/pkg/strategy"
)

const (
	defaultWheelResolution = time.Second
	defaultQueueLimit      = maxScheduledPerCredential
)

// Dispatch runs one evaluation attempt for botID; typically Evaluator.Run
// wrapped by the host process. It is invoked on its own goroutine.
type Dispatch func(ctx context.Context, botID string)

type schedEntry struct {
	botID        string
	credentialID string
	interval     time.Duration
	nextDue      time.Time
	pending      bool
}

// Scheduler is the timer wheel. Bots are registered with their
// timeframe; Run ticks the wheel until ctx is cancelled.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*schedEntry

	coord      *Coordinator
	dispatch   Dispatch
	resolution time.Duration
	queueLimit int
}

// NewScheduler constructs a Scheduler dispatching through coord's
// backpressure signal.
func NewScheduler(coord *Coordinator, dispatch Dispatch) *Scheduler {
	return &Scheduler{
		entries:    make(map[string]*schedEntry),
		coord:      coord,
		dispatch:   dispatch,
		resolution: defaultWheelResolution,
		queueLimit: defaultQueueLimit,
	}
}

// WithResolution overrides the wheel's tick resolution (used by tests).
func (s *Scheduler) WithResolution(d time.Duration) *Scheduler {
	if d > 0 {
		s.resolution = d
	}
	return s
}

// Register adds (or re-keys) a bot on the wheel at its timeframe cadence.
// Unrecognised timeframes are rejected silently with a log line rather than
// an error: the bot stays unscheduled until its timeframe is corrected.
func (s *Scheduler) Register(bot domain.Bot) {
	minutes, ok := strategy.CandleMinutes(bot.Timeframe)
	if !ok {
		logx.Slowf("scheduler: bot=%s unrecognised timeframe %q, not scheduled", bot.ID, bot.Timeframe)
		return
	}
	interval := time.Duration(minutes) * time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, exists := s.entries[bot.ID]; exists {
		e.credentialID = bot.CredentialID
		e.interval = interval
		return
	}
	s.entries[bot.ID] = &schedEntry{
		botID:        bot.ID,
		credentialID: bot.CredentialID,
		interval:     interval,
		nextDue:      time.Now().Add(interval),
	}
}

// Unregister removes a bot from the wheel, e.g. on bot delete or deactivate.
func (s *Scheduler) Unregister(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, botID)
}

// Run ticks the wheel until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tickOnce(ctx, now)
		}
	}
}

// tickOnce dispatches every due entry. Exposed on the struct (not the loop)
// so tests can drive the wheel with a synthetic clock.
func (s *Scheduler) tickOnce(ctx context.Context, now time.Time) {
	var due []*schedEntry

	s.mu.Lock()
	for _, e := range s.entries {
		if now.Before(e.nextDue) {
			continue
		}
		// Always advance the wheel: a dropped tick is dropped, not deferred.
		e.nextDue = now.Add(e.interval)

		if e.pending {
			continue
		}
		if s.coord != nil && s.coord.ActiveCount(e.credentialID) >= s.queueLimit {
			logx.Slowf("scheduler: credential=%s queue saturated, dropping tick bot=%s", e.credentialID, e.botID)
			continue
		}
		e.pending = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		entry := e
		go func() {
			defer s.clearPending(entry.botID)
			s.dispatch(ctx, entry.botID)
		}()
	}
}

func (s *Scheduler) clearPending(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[botID]; ok {
		e.pending = false
	}
}

// PendingCount reports how many bots currently have a dispatched,
// not-yet-completed tick. Observability only.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.pending {
			n++
		}
	}
	return n
}
