package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/config"
	"github.com/eddiefleurent/delta_neutral/internal/dashboard"
	"github.com/eddiefleurent/delta_neutral/internal/mock"
	"github.com/eddiefleurent/delta_neutral/internal/orders"
	"github.com/eddiefleurent/delta_neutral/internal/storage"
	"github.com/eddiefleurent/delta_neutral/internal/strategy"
)

// Bot wires the strategy to its exchange, journal and status server
type Bot struct {
	config    *config.Config
	logger    *logrus.Logger
	journal   *storage.CSVJournal
	engine    *strategy.Engine
	runner    *strategy.Runner
	dashboard *dashboard.Server
}

// buildExchange creates the configured quote source, wrapped for paper
// trading and the circuit breaker as configured.
func buildExchange(cfg *config.Config, logger *logrus.Logger) (broker.Exchange, error) {
	var exchange broker.Exchange
	switch cfg.Exchange.Provider {
	case "mock":
		exchange = mock.NewChainProvider()
	case "coinswitch":
		client, err := broker.NewCoinswitchBybit(
			cfg.Exchange.APIKey,
			cfg.Exchange.APISecret,
			cfg.Exchange.BaseURL,
			cfg.GetExchangeTimeout(),
			logger.WithField("component", "exchange"),
		)
		if err != nil {
			return nil, fmt.Errorf("creating exchange client: %w", err)
		}
		exchange = client
	default:
		return nil, fmt.Errorf("unknown exchange provider %q", cfg.Exchange.Provider)
	}

	if cfg.CircuitBreaker.Enabled {
		exchange = broker.NewCircuitBreakerExchangeWithSettings(exchange, broker.CircuitBreakerSettings{
			MaxRequests:  cfg.CircuitBreaker.MaxRequests,
			Interval:     cfg.GetCircuitBreakerInterval(),
			Timeout:      cfg.GetCircuitBreakerTimeout(),
			MinRequests:  cfg.CircuitBreaker.MinRequests,
			FailureRatio: cfg.CircuitBreaker.FailureRatio,
		}, logger)
	}

	if cfg.IsPaperTrading() {
		exchange = broker.NewPaperExchange(exchange, logger.WithField("component", "paper"))
	}
	return exchange, nil
}

func newTrigger(cfg *config.Config) strategy.EntryTrigger {
	if cfg.Strategy.Entry.Mode == config.EntryModeImmediate {
		return strategy.ImmediateTrigger{}
	}
	return strategy.NewIVSpikeTrigger(cfg.Strategy.Entry.SpikeRatio, cfg.Strategy.Entry.Smoothing)
}

func newBot(cfg *config.Config, expiry string, exchange broker.Exchange, logger *logrus.Logger) (*Bot, error) {
	journal, err := storage.NewCSVJournal(cfg.Logging.TradesCSV, logger.WithField("component", "journal"))
	if err != nil {
		return nil, err
	}
	logger.WithField("path", journal.Path()).Info("Recording trades")

	manager := orders.NewManager(exchange, journal, logger.WithField("component", "orders"), orders.Config{
		Quantity:    cfg.Strategy.OrderQty,
		CallTimeout: cfg.GetExchangeTimeout(),
	})

	engine := strategy.NewEngine(manager, newTrigger(cfg), strategy.Config{
		EntryTargetDelta:  cfg.Strategy.Entry.TargetDelta,
		DeltaBand:         cfg.Strategy.Band,
		ProfitTargetPct:   cfg.Strategy.Exit.ProfitTargetPct,
		StopLossPct:       cfg.Strategy.Exit.StopLossPct,
		WingStrikeEpsilon: cfg.Strategy.WingStrikeEpsilon,
	}, logger.WithField("component", "strategy"))

	runner := strategy.NewRunner(engine, exchange, cfg.Exchange.BaseAsset, expiry, strategy.Schedule{
		EntryPoll:     cfg.GetEntryPoll(),
		EntryBackoff:  cfg.GetEntryBackoff(),
		CheckInterval: cfg.GetCheckInterval(),
	}, logger.WithField("component", "runner"))

	b := &Bot{
		config:  cfg,
		logger:  logger,
		journal: journal,
		engine:  engine,
		runner:  runner,
	}
	if cfg.Dashboard.Enabled {
		b.dashboard = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, engine, logger.WithField("component", "dashboard"))
	}
	return b, nil
}

// run drives the strategy to a terminal state. The status server, when
// enabled, runs alongside and stops with it.
func (b *Bot) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		out, err := b.runner.Run(runCtx)
		if err != nil {
			return err
		}
		st := b.engine.Status()
		b.logger.WithFields(logrus.Fields{
			"outcome":  out.Kind.String(),
			"state":    st.State,
			"realized": fmt.Sprintf("%.4f", st.RealizedPnL),
		}).Info("Strategy finished")
		return nil
	})

	if b.dashboard != nil {
		g.Go(b.dashboard.Start)
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return b.dashboard.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (b *Bot) close() {
	if err := b.journal.Close(); err != nil {
		b.logger.WithError(err).Warn("Failed to close trade journal")
	}
}
