// Package core drives one ingest run through an explicit state machine and
// schedules runs. Runs inside one process are sequential; two processes
// sharing a state blob are not coordinated and the last commit wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"forecastbot/internal/archive"
	"forecastbot/internal/dispatch"
	"forecastbot/internal/identity"
	"forecastbot/internal/metrics"
	"forecastbot/internal/processors"
	"forecastbot/internal/types"
)

const (
	defaultFetchTimeout  = 2 * time.Minute
	defaultCommitTimeout = 30 * time.Second
	metricsPushTimeout   = 10 * time.Second
)

type RunReport struct {
	RunDate    time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	State    RunState
	FailedAt RunState

	Fetched  int
	Filtered int
	New      int
	Seen     int

	Delivered  []string
	Duplicates []string
	Failures   []*types.ItemError
	Artifacts  []string
	Committed  bool

	Sweep        *archive.SweepResult
	SweepErr     error
	StateWarning error
	Err          error
}

// Failed reports a run that did not reach Done.
func (r *RunReport) Failed() bool {
	return r.State == StateFailed
}

// Partial reports a completed run that left some new items unannounced.
// They stay un-staged and are retried on the next run.
func (r *RunReport) Partial() bool {
	return !r.Failed() && len(r.Failures) > 0
}

func (r *RunReport) Result() string {
	switch {
	case r.Failed():
		return metrics.ResultFailed
	case r.Partial():
		return metrics.ResultPartial
	default:
		return metrics.ResultDone
	}
}

type Options struct {
	Source     types.Source
	Filter     *processors.Filter
	Identity   *identity.Set
	Archiver   *archive.Archiver
	Sweeper    *archive.Sweeper
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics

	Location      *time.Location
	FetchTimeout  time.Duration
	CommitTimeout time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

type Orchestrator struct {
	opts   Options
	logger *slog.Logger
}

// run carries the batch between steps of a single Run.
type run struct {
	report    *RunReport
	batch     []*types.Opportunity
	filtered  []*types.Opportunity
	newItems  []*types.Opportunity
	seenItems []*types.Opportunity
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Source == nil:
		return nil, types.NewConfigError("source", "a source is required")
	case opts.Identity == nil:
		return nil, types.NewConfigError("state", "an identity set is required")
	case opts.Archiver == nil:
		return nil, types.NewConfigError("archive", "an archiver is required")
	case opts.Dispatcher == nil:
		return nil, types.NewConfigError("channel", "a dispatcher is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaultCommitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: opts.Logger}, nil
}

func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.opts.Source.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize source %s: %w", o.opts.Source.Name(), err)
	}
	return nil
}

func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.opts.Source.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down source %s: %w", o.opts.Source.Name(), err)
	}
	return nil
}

// Run executes one pass of the pipeline. The returned report is never nil;
// report.Err holds the fatal error of a failed run.
func (o *Orchestrator) Run(ctx context.Context) *RunReport {
	started := o.opts.Clock()
	local := started.In(o.opts.Location)
	r := &run{report: &RunReport{
		StartedAt: started,
		RunDate:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.opts.Location),
	}}

	o.logger.Info("Run starting", "source", o.opts.Source.Name(), "run_date", r.report.RunDate.Format(time.DateOnly))

	state := StateLoading
	for !state.Terminal() {
		next, err := o.step(ctx, state, r)
		if err != nil {
			if r.report.Err == nil {
				r.report.Err = err
				r.report.FailedAt = state
			}
			next = StateFailed
		}
		if terr := Transition(state, next); terr != nil {
			r.report.Err = errors.Join(r.report.Err, terr)
			r.report.FailedAt = state
			next = StateFailed
		}
		o.logger.Debug("Run state changed", "from", state, "to", next)
		state = next
	}

	r.report.State = state
	r.report.FinishedAt = o.opts.Clock()
	o.record(ctx, r.report)
	return r.report
}

func (o *Orchestrator) step(ctx context.Context, state RunState, r *run) (RunState, error) {
	switch state {
	case StateLoading:
		return StateFetching, o.load(ctx, r)
	case StateFetching:
		return StateFiltering, o.fetch(ctx, r)
	case StateFiltering:
		r.filtered = o.opts.Filter.Apply(r.batch)
		r.report.Filtered = len(r.filtered)
		return StateDeduping, nil
	case StateDeduping:
		r.newItems, r.seenItems = processors.Partition(r.filtered, o.opts.Identity)
		r.report.New = len(r.newItems)
		r.report.Seen = len(r.seenItems)
		o.logger.Info("Partitioned filtered batch", "filtered", r.report.Filtered, "new", r.report.New, "seen", r.report.Seen)
		return StateArchiving, nil
	case StateArchiving:
		return StateNotifying, o.archive(ctx, r)
	case StateNotifying:
		o.notify(ctx, r)
		return StateCommitting, nil
	case StateCommitting:
		return o.commit(ctx, r)
	case StateSweeping:
		o.sweep(r)
		return StateDone, nil
	default:
		return StateFailed, fmt.Errorf("no step for state %s", state)
	}
}

func (o *Orchestrator) load(ctx context.Context, r *run) error {
	if o.opts.Filter == nil || len(o.opts.Filter.Targets()) == 0 {
		return types.NewConfigError("filter.target_codes", "at least one target code is required")
	}

	if err := o.opts.Identity.Load(ctx); err != nil {
		if !types.IsCorruptState(err) {
			return err
		}
		// Continue with an empty set; the next commit replaces the bad blob.
		r.report.StateWarning = err
	}
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, r *run) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	batch, err := o.opts.Source.Fetch(fetchCtx)
	if err != nil {
		return &types.FetchError{Source: o.opts.Source.Name(), Err: err}
	}
	r.batch = batch
	r.report.Fetched = len(batch)
	return nil
}

func (o *Orchestrator) archive(ctx context.Context, r *run) error {
	paths, err := o.opts.Archiver.Write(ctx, r.report.RunDate, r.filtered)
	if err != nil {
		return fmt.Errorf("archive filtered batch: %w", err)
	}
	r.report.Artifacts = paths
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, r *run) {
	rep, err := o.opts.Dispatcher.Dispatch(ctx, r.newItems, o.opts.Identity)
	r.report.Delivered = rep.Delivered
	r.report.Duplicates = rep.Duplicates
	r.report.Failures = rep.Failures

	if err != nil {
		// Commit what was confirmed before failing the run.
		r.report.Err = fmt.Errorf("notification interrupted: %w", err)
		r.report.FailedAt = StateNotifying
	}
}

func (o *Orchestrator) commit(ctx context.Context, r *run) (RunState, error) {
	interrupted := r.report.Err
	if interrupted != nil {
		ctx = context.WithoutCancel(ctx)
	}
	commitCtx, cancel := context.WithTimeout(ctx, o.opts.CommitTimeout)
	defer cancel()

	if err := o.opts.Identity.Commit(commitCtx); err != nil {
		if interrupted != nil {
			r.report.Err = errors.Join(interrupted, err)
		}
		return StateFailed, err
	}
	r.report.Committed = true

	if interrupted != nil {
		return StateFailed, interrupted
	}
	return StateSweeping, nil
}

func (o *Orchestrator) sweep(r *run) {
	if o.opts.Sweeper == nil {
		return
	}
	res, err := o.opts.Sweeper.Sweep(o.opts.Clock())
	r.report.Sweep = &res
	if err != nil {
		r.report.SweepErr = err
		o.logger.Warn("Archive sweep failed", "error", err)
		return
	}
	for name, ferr := range res.Failed {
		o.logger.Warn("Failed to delete expired artifact", "file", name, "error", ferr)
	}
}

func (o *Orchestrator) record(ctx context.Context, rep *RunReport) {
	m := o.opts.Metrics
	m.Opportunities(metrics.StageFetched, rep.Fetched)
	m.Opportunities(metrics.StageFiltered, rep.Filtered)
	m.Opportunities(metrics.StageNew, rep.New)
	m.Opportunities(metrics.StageSeen, rep.Seen)
	m.Notifications(metrics.OutcomeDelivered, len(rep.Delivered))
	m.Notifications(metrics.OutcomeDuplicate, len(rep.Duplicates))
	m.Notifications(metrics.OutcomeFailed, len(rep.Failures))
	if rep.Sweep != nil {
		m.Swept(len(rep.Sweep.Deleted))
	}
	m.Run(rep.Result(), rep.StartedAt, rep.FinishedAt)

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := m.Push(pushCtx); err != nil {
		o.logger.Warn("Failed to push metrics", "error", err)
	}

	attrs := []any{
		"result", rep.Result(),
		"fetched", rep.Fetched,
		"filtered", rep.Filtered,
		"new", rep.New,
		"seen", rep.Seen,
		"delivered", len(rep.Delivered),
		"failed_items", len(rep.Failures),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	}
	switch {
	case rep.Failed():
		o.logger.Error("Run failed", append(attrs, "state", rep.FailedAt, "error", rep.Err)...)
	case rep.Partial():
		skipped := make([]string, 0, len(rep.Failures))
		for _, f := range rep.Failures {
			skipped = append(skipped, f.ItemID)
		}
		o.logger.Warn("Run completed with notification gaps", append(attrs, "skipped", skipped)...)
	default:
		o.logger.Info("Run completed", attrs...)
	}
}
