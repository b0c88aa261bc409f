package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner is one pass of the pipeline; *Orchestrator implements it.
type Runner interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context) *RunReport
	Shutdown(ctx context.Context) error
}

type Bot struct {
	name       string
	runner     Runner
	interval   time.Duration
	runOnce    bool
	logger     *slog.Logger
	mu         sync.RWMutex
	running    bool
	last       *RunReport
	stopCh     chan struct{}
	stopOnce   sync.Once
	reports    chan *RunReport
	shutdownFn func() error
}

type BotConfig struct {
	Name       string
	Runner     Runner
	Interval   time.Duration
	RunOnce    bool
	Logger     *slog.Logger
	ShutdownFn func() error
}

func NewBot(config BotConfig) *Bot {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:       config.Name,
		runner:     config.Runner,
		interval:   config.Interval,
		runOnce:    config.RunOnce,
		logger:     config.Logger,
		stopCh:     make(chan struct{}),
		reports:    make(chan *RunReport, 10),
		shutdownFn: config.ShutdownFn,
	}
}

// Start initializes the runner and runs either once or on every tick until
// ctx is cancelled or Stop is called. In run-once mode the report of the run
// is returned with its fatal error.
func (b *Bot) Start(ctx context.Context) (*RunReport, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, fmt.Errorf("bot already running")
	}
	b.running = true
	b.mu.Unlock()
	defer b.markStopped()

	if err := b.runner.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize bot %s: %w", b.name, err)
	}

	if b.runOnce {
		rep := b.execute(ctx)
		return rep, rep.Err
	}

	return nil, b.runContinuous(ctx)
}

func (b *Bot) runContinuous(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.publish(b.execute(ctx))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			b.publish(b.execute(ctx))
		}
	}
}

// execute runs once. Runs never overlap: the next tick is only read after
// this returns, and missed ticks are dropped by the ticker.
func (b *Bot) execute(ctx context.Context) *RunReport {
	rep := b.runner.Run(ctx)
	b.mu.Lock()
	b.last = rep
	b.mu.Unlock()
	return rep
}

func (b *Bot) publish(rep *RunReport) {
	select {
	case b.reports <- rep:
	default:
		b.logger.Debug("Dropping run report, no reader", "bot", b.name)
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopCh) })

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := b.runner.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bot %s shutdown failed: %w", b.name, err)
	}

	if b.shutdownFn != nil {
		if err := b.shutdownFn(); err != nil {
			return fmt.Errorf("custom shutdown failed: %w", err)
		}
	}

	return nil
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) Name() string {
	return b.name
}

// LastReport returns the report of the most recent run, or nil.
func (b *Bot) LastReport() *RunReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

func (b *Bot) Reports() <-chan *RunReport {
	return b.reports
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}
