package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/models"
)

// Schedule defaults
const (
	DefaultEntryPoll     = time.Second
	DefaultEntryBackoff  = 5 * time.Second
	DefaultCheckInterval = 15 * time.Minute
)

// Schedule controls the control loop cadence
type Schedule struct {
	EntryPoll     time.Duration
	EntryBackoff  time.Duration
	CheckInterval time.Duration
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner drives an Engine from exchange quotes. It owns the engine goroutine.
type Runner struct {
	engine    *Engine
	exchange  broker.Exchange
	logger    logrus.FieldLogger
	sleep     Sleeper
	baseAsset string
	expiry    string
	schedule  Schedule
}

// NewRunner creates a Runner for one base asset and expiry code
func NewRunner(engine *Engine, exchange broker.Exchange, baseAsset, expiry string,
	schedule Schedule, logger logrus.FieldLogger) *Runner {
	if schedule.EntryPoll <= 0 {
		schedule.EntryPoll = DefaultEntryPoll
	}
	if schedule.EntryBackoff <= 0 {
		schedule.EntryBackoff = DefaultEntryBackoff
	}
	if schedule.CheckInterval <= 0 {
		schedule.CheckInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		engine:    engine,
		exchange:  exchange,
		logger:    logger,
		sleep:     ContextSleep,
		baseAsset: baseAsset,
		expiry:    expiry,
		schedule:  schedule,
	}
}

// WithSleeper replaces the sleep function (tests)
func (r *Runner) WithSleeper(s Sleeper) *Runner {
	if s != nil {
		r.sleep = s
	}
	return r
}

func (r *Runner) fetch(ctx context.Context) (*models.QuoteSnapshot, error) {
	snap, err := r.exchange.FetchQuotes(ctx, r.baseAsset, r.expiry)
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}
	return snap, nil
}

// Run enters a position and manages it until it exits or converts. It returns
// the terminal outcome, or an error on exchange failure or cancellation.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	r.logger.WithFields(logrus.Fields{
		"base_asset": r.baseAsset,
		"expiry":     r.expiry,
	}).Info("Monitoring IV for a spike")

	if err := r.enter(ctx); err != nil {
		return Outcome{}, err
	}
	return r.manage(ctx)
}

func (r *Runner) enter(ctx context.Context) error {
	for {
		snap, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		out, err := r.engine.Enter(ctx, snap)
		switch {
		case errors.Is(err, ErrNoATMQuote):
			r.logger.Warn("Could not determine ATM IV, backing off")
			if err := r.sleep(ctx, r.schedule.EntryBackoff); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		if out.Kind == OutcomeEntered {
			return nil
		}
		if err := r.sleep(ctx, r.schedule.EntryPoll); err != nil {
			return err
		}
	}
}

func (r *Runner) manage(ctx context.Context) (Outcome, error) {
	rolls := 0
	for {
		if err := r.sleep(ctx, r.schedule.CheckInterval); err != nil {
			return Outcome{}, err
		}
		snap, err := r.fetch(ctx)
		if err != nil {
			return Outcome{}, err
		}

		out, err := r.engine.Evaluate(ctx, snap)
		if err != nil {
			return Outcome{}, err
		}
		switch out.Kind {
		case OutcomeExited:
			return out, nil
		case OutcomeRebalanced:
			rolls++
		}

		if rolls == 0 {
			continue
		}
		out, err = r.engine.TryConvert(ctx, snap)
		if err != nil {
			return Outcome{}, err
		}
		if out.Kind == OutcomeConverted {
			r.logger.Info("Position converted to iron butterfly, stopping management")
			return out, nil
		}
	}
}
