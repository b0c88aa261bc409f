package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs     atomic.Int32
	initErr  error
	runErr   error
	shutdown atomic.Bool
}

func (c *countingRunner) Initialize(ctx context.Context) error { return c.initErr }
func (c *countingRunner) Shutdown(ctx context.Context) error {
	c.shutdown.Store(true)
	return nil
}
func (c *countingRunner) Run(ctx context.Context) *RunReport {
	c.runs.Add(1)
	rep := &RunReport{State: StateDone}
	if c.runErr != nil {
		rep.State = StateFailed
		rep.Err = c.runErr
	}
	return rep
}

func TestBotRunOnce(t *testing.T) {
	r := &countingRunner{}
	bot := NewBot(BotConfig{Name: "apfs", Runner: r, RunOnce: true})

	rep, err := bot.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, int32(1), r.runs.Load())
	assert.False(t, bot.IsRunning())
	assert.Same(t, rep, bot.LastReport())
}

func TestBotRunOnceReturnsRunError(t *testing.T) {
	r := &countingRunner{runErr: errors.New("fetch failed")}
	bot := NewBot(BotConfig{Name: "apfs", Runner: r, RunOnce: true})

	rep, err := bot.Start(context.Background())
	require.Error(t, err)
	assert.True(t, rep.Failed())
}

func TestBotInitializeFailure(t *testing.T) {
	r := &countingRunner{initErr: errors.New("bad script")}
	bot := NewBot(BotConfig{Name: "apfs", Runner: r, RunOnce: true})

	_, err := bot.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(0), r.runs.Load())
}

func TestBotContinuousRunsUntilStopped(t *testing.T) {
	r := &countingRunner{}
	bot := NewBot(BotConfig{Name: "apfs", Runner: r, Interval: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := bot.Start(context.Background())
		done <- err
	}()

	<-bot.Reports()
	<-bot.Reports()

	require.NoError(t, bot.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.GreaterOrEqual(t, r.runs.Load(), int32(2))
	assert.True(t, r.shutdown.Load())
	require.NoError(t, bot.Stop(context.Background()))
}

func TestBotContinuousStopsOnCancel(t *testing.T) {
	r := &countingRunner{}
	bot := NewBot(BotConfig{Name: "apfs", Runner: r, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := bot.Start(ctx)
		done <- err
	}()

	<-bot.Reports()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
