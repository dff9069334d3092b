package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfleet/pkg/domain"
)

type dispatchRecorder struct {
	mu    sync.Mutex
	calls []string
	block chan struct{}
}

func (d *dispatchRecorder) fn(ctx context.Context, botID string) {
	d.mu.Lock()
	d.calls = append(d.calls, botID)
	d.mu.Unlock()
	if d.block != nil {
		<-d.block
	}
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduler_DispatchesDueBots(t *testing.T) {
	rec := &dispatchRecorder{}
	s := NewScheduler(NewCoordinator(), rec.fn)
	s.Register(domain.Bot{ID: "bot-1", CredentialID: "cred-1", Timeframe: "M1"})

	s.tickOnce(context.Background(), time.Now().Add(2*time.Minute))
	waitFor(t, func() bool { return rec.count() == 1 })
	assert.Equal(t, []string{"bot-1"}, rec.calls)
}

func TestScheduler_AtMostOnePendingTickPerBot(t *testing.T) {
	rec := &dispatchRecorder{block: make(chan struct{})}
	s := NewScheduler(NewCoordinator(), rec.fn)
	s.Register(domain.Bot{ID: "bot-1", CredentialID: "cred-1", Timeframe: "M1"})

	now := time.Now()
	s.tickOnce(context.Background(), now.Add(2*time.Minute))
	waitFor(t, func() bool { return rec.count() == 1 })

	// The bot is still executing; an overdue tick is dropped, not queued.
	s.tickOnce(context.Background(), now.Add(4*time.Minute))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, s.PendingCount())

	close(rec.block)
	waitFor(t, func() bool { return s.PendingCount() == 0 })

	s.tickOnce(context.Background(), now.Add(6*time.Minute))
	waitFor(t, func() bool { return rec.count() == 2 })
}

func TestScheduler_BackpressureDropsTicks(t *testing.T) {
	coord := NewCoordinator().WithMinGap(time.Nanosecond)
	for i := 0; i < maxScheduledPerCredential; i++ {
		time.Sleep(time.Microsecond)
		require.True(t, coord.RequestBotExecution("filler-"+string(rune('a'+i)), "cred-1", 50))
	}

	rec := &dispatchRecorder{}
	s := NewScheduler(coord, rec.fn)
	s.Register(domain.Bot{ID: "bot-1", CredentialID: "cred-1", Timeframe: "M1"})

	s.tickOnce(context.Background(), time.Now().Add(2*time.Minute))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count(), "saturated credential queue must drop the tick")
}

func TestScheduler_UnrecognisedTimeframeNotScheduled(t *testing.T) {
	rec := &dispatchRecorder{}
	s := NewScheduler(NewCoordinator(), rec.fn)
	s.Register(domain.Bot{ID: "bot-1", CredentialID: "cred-1", Timeframe: "M7"})

	s.tickOnce(context.Background(), time.Now().Add(time.Hour))
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, rec.count())
}
