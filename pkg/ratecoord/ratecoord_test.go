package ratecoord

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botfleet/pkg/orcherr"
)

func TestAcquireRespectsMaxConcurrent(t *testing.T) {
	c := New()
	c.Configure("cred-1", Config{MaxConcurrent: 1, MinGap: time.Millisecond})

	lease1, err := c.Acquire(context.Background(), "cred-1", 50, time.Now().Add(time.Second))
	require.NoError(t, err)

	var inFlight int32
	done := make(chan struct{})
	go func() {
		lease2, err := c.Acquire(context.Background(), "cred-1", 50, time.Now().Add(time.Second))
		require.NoError(t, err)
		atomic.AddInt32(&inFlight, 1)
		c.Release(lease2, OutcomeSuccess)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&inFlight), "second acquire must not grant while first lease is held")

	c.Release(lease1, OutcomeSuccess)
	<-done
}

func TestAcquireTimesOutPastDeadline(t *testing.T) {
	c := New()
	c.Configure("cred-2", Config{MaxConcurrent: 1, MinGap: time.Millisecond})
	lease, err := c.Acquire(context.Background(), "cred-2", 50, time.Now().Add(time.Second))
	require.NoError(t, err)
	defer c.Release(lease, OutcomeSuccess)

	_, err = c.Acquire(context.Background(), "cred-2", 50, time.Now().Add(20*time.Millisecond))
	require.ErrorIs(t, err, orcherr.ErrAdmissionTimeout)
}

func TestHigherPriorityWinsTies(t *testing.T) {
	c := New()
	c.Configure("cred-3", Config{MaxConcurrent: 1, MinGap: time.Millisecond})
	lease, err := c.Acquire(context.Background(), "cred-3", 50, time.Now().Add(time.Second))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for _, p := range []int{10, 90, 50} {
		wg.Add(1)
		go func(priority int) {
			defer wg.Done()
			l, err := c.Acquire(context.Background(), "cred-3", priority, time.Now().Add(2*time.Second))
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, priority)
			mu.Unlock()
			c.Release(l, OutcomeSuccess)
		}(p)
		time.Sleep(5 * time.Millisecond) // stagger arrival so queue order is deterministic
	}

	time.Sleep(10 * time.Millisecond)
	c.Release(lease, OutcomeSuccess)
	wg.Wait()

	require.Equal(t, []int{90, 50, 10}, order)
}

func TestRateLimitedExtendsCooldown(t *testing.T) {
	c := New()
	c.Configure("cred-4", Config{MaxConcurrent: 1, MinGap: time.Millisecond, BaseCooldown: 30 * time.Millisecond})
	lease, err := c.Acquire(context.Background(), "cred-4", 50, time.Now().Add(time.Second))
	require.NoError(t, err)
	c.Release(lease, OutcomeRateLimited)

	start := time.Now()
	lease2, err := c.Acquire(context.Background(), "cred-4", 50, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "acquire must wait out the cooldown")
	c.Release(lease2, OutcomeSuccess)
}
