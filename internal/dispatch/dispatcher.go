// Package dispatch announces new opportunities one at a time and stages each
// identifier only after its delivery is confirmed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"forecastbot/internal/types"
)

const (
	StageSummary  = "summary"
	StageDelivery = "delivery"
)

// Staging is the part of the identifier set the dispatcher needs.
type Staging interface {
	Contains(id string) bool
	Stage(id string)
}

// BuildFunc renders a delivered message from an opportunity and its summary.
type BuildFunc func(opp *types.Opportunity, summary string) *types.Message

type Options struct {
	SummaryTimeout  time.Duration // default 60s
	DeliveryTimeout time.Duration // default 15s
	PerMinute       int           // delivery pacing, 0 disables
	Build           BuildFunc
	Logger          *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		SummaryTimeout:  60 * time.Second,
		DeliveryTimeout: 15 * time.Second,
		PerMinute:       30,
	}
}

type Report struct {
	Delivered  []string
	Duplicates []string
	Failures   []*types.ItemError
}

func (r Report) Attempted() int {
	return len(r.Delivered) + len(r.Failures)
}

type Dispatcher struct {
	summarizer types.Summarizer
	notifier   types.Notifier
	opts       Options
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func New(summarizer types.Summarizer, notifier types.Notifier, opts Options) (*Dispatcher, error) {
	if summarizer == nil {
		return nil, fmt.Errorf("dispatcher requires a summarizer")
	}
	if notifier == nil {
		return nil, fmt.Errorf("dispatcher requires a notifier")
	}

	def := DefaultOptions()
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = def.SummaryTimeout
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = def.DeliveryTimeout
	}
	if opts.Build == nil {
		opts.Build = plainMessage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.PerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.PerMinute)/60.0), max(1, opts.PerMinute/10))
	}

	return &Dispatcher{
		summarizer: summarizer,
		notifier:   notifier,
		opts:       opts,
		limiter:    limiter,
		logger:     opts.Logger.With("notifier", notifier.Name()),
	}, nil
}

// Dispatch walks items in order. Item failures are collected in the report
// and never stop the batch; only cancellation of ctx does, in which case the
// partial report is returned with ctx's error.
func (d *Dispatcher) Dispatch(ctx context.Context, items []*types.Opportunity, set Staging) (Report, error) {
	var report Report

	for _, opp := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if set.Contains(opp.ID) {
			d.logger.Debug("Skipping duplicate in batch", "item_id", opp.ID)
			report.Duplicates = append(report.Duplicates, opp.ID)
			continue
		}

		summary, err := d.summarize(ctx, opp)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failures = append(report.Failures, d.itemFailure(StageSummary, opp, err))
			continue
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		if err := d.deliver(ctx, opp, summary); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failures = append(report.Failures, d.itemFailure(StageDelivery, opp, err))
			continue
		}

		set.Stage(opp.ID)
		report.Delivered = append(report.Delivered, opp.ID)
		d.logger.Info("Delivered notification", "item_id", opp.ID, "title", opp.Title())
	}

	return report, nil
}

func (d *Dispatcher) summarize(ctx context.Context, opp *types.Opportunity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SummaryTimeout)
	defer cancel()
	return d.summarizer.Summarize(ctx, opp)
}

func (d *Dispatcher) deliver(ctx context.Context, opp *types.Opportunity, summary string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()

	msg := d.opts.Build(opp, summary)
	result, err := d.notifier.Notify(ctx, msg)
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("notifier returned no result")
	}
	if !result.Success {
		if result.Error != nil {
			return result.Error
		}
		return errors.New("delivery not confirmed")
	}
	return nil
}

func (d *Dispatcher) itemFailure(stage string, opp *types.Opportunity, err error) *types.ItemError {
	itemErr := types.NewItemError(stage, opp.ID, err)
	d.logger.Warn("Skipping item, will retry next run", "stage", stage, "item_id", opp.ID, "error", err)
	return itemErr
}

func plainMessage(opp *types.Opportunity, summary string) *types.Message {
	return &types.Message{
		OpportunityID: opp.ID,
		Title:         opp.Title(),
		Summary:       summary,
		Timestamp:     time.Now(),
	}
}
