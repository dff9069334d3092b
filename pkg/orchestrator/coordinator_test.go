package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_OneExecutionPerBot(t *testing.T) {
	c := NewCoordinator().WithMinGap(time.Millisecond)
	require.True(t, c.RequestBotExecution("bot-1", "cred-1", 50))
	assert.False(t, c.RequestBotExecution("bot-1", "cred-1", 50), "a bot may never execute twice concurrently")

	c.CompleteBotExecution("bot-1", true)
	time.Sleep(2 * time.Millisecond)
	assert.True(t, c.RequestBotExecution("bot-1", "cred-1", 50))
}

func TestCoordinator_HardCapPerCredential(t *testing.T) {
	c := NewCoordinator().WithMinGap(time.Nanosecond)
	admitted := 0
	for i := 0; i < 12; i++ {
		botID := "bot-" + string(rune('a'+i))
		time.Sleep(time.Microsecond)
		if c.RequestBotExecution(botID, "cred-shared", 50) {
			admitted++
		}
	}
	assert.Equal(t, maxScheduledPerCredential, admitted)
	assert.Equal(t, maxScheduledPerCredential, c.ActiveCount("cred-shared"))
}

func TestCoordinator_CompleteIsIdempotent(t *testing.T) {
	c := NewCoordinator().WithMinGap(time.Nanosecond)
	require.True(t, c.RequestBotExecution("bot-1", "cred-1", 50))

	c.CompleteBotExecution("bot-1", true)
	// A crash-and-restart replaying the completion must not double-release.
	c.CompleteBotExecution("bot-1", true)
	assert.Equal(t, 0, c.ActiveCount("cred-1"))
}

func TestCoordinator_MinGapBetweenBots(t *testing.T) {
	c := NewCoordinator().WithMinGap(time.Hour)
	require.True(t, c.RequestBotExecution("bot-1", "cred-1", 50))
	assert.False(t, c.RequestBotExecution("bot-2", "cred-1", 50), "second bot inside the min gap must wait")
	assert.True(t, c.RequestBotExecution("bot-3", "cred-other", 50), "gap applies per credential")
}
