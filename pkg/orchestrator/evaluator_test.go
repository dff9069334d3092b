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

type memEvals struct {
	mu    sync.Mutex
	saved []domain.Evaluation
}

func (m *memEvals) SaveEvaluation(ctx context.Context, e domain.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, e)
	return nil
}

func (m *memEvals) last() (domain.Evaluation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return domain.Evaluation{}, false
	}
	return m.saved[len(m.saved)-1], true
}

func TestEvaluator_InactiveBotPersistsEvaluation(t *testing.T) {
	bots := defaultBots()
	bot := bots.bots["bot-1"]
	bot.IsActive = false
	bots.bots["bot-1"] = bot

	evals := &memEvals{}
	e := &Evaluator{Bots: bots, Evals: evals, Coord: NewCoordinator()}

	eval, err := e.Run(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHold, eval.Decision)
	assert.Equal(t, "bot_inactive", eval.Reason)

	saved, ok := evals.last()
	require.True(t, ok, "every attempt persists an Evaluation row")
	assert.Equal(t, "bot-1", saved.BotID)
}

func TestEvaluator_CoordinatorRefusalReturnsQueued(t *testing.T) {
	bots := defaultBots()
	coord := NewCoordinator().WithMinGap(time.Nanosecond)
	// The bot is already mid-execution; a second attempt must be refused.
	require.True(t, coord.RequestBotExecution("bot-1", "cred-1", 50))

	e := &Evaluator{Bots: bots, Evals: &memEvals{}, Coord: coord}
	eval, err := e.Run(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "queued", eval.Reason)
}
