// Package orders executes strategy orders against the exchange and records
// each fill in the trade journal.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/storage"
)

// Config contains configuration for the order manager.
type Config struct {
	// Quantity is the exchange order size of one contract
	Quantity    float64
	CallTimeout time.Duration
}

// DefaultConfig is the default configuration for the order manager.
var DefaultConfig = Config{
	Quantity:    0.01,
	CallTimeout: 10 * time.Second,
}

// Fill describes one market order and the values journaled for it.
type Fill struct {
	Side        broker.OrderSide
	Symbol      string
	Price       float64 // mark recorded in the journal
	Contracts   int
	RealizedPnL float64
}

// Manager submits orders and journals them.
type Manager struct {
	exchange broker.Exchange
	journal  storage.TradeJournal
	logger   logrus.FieldLogger
	now      func() time.Time
	config   Config
}

// NewManager creates a new order manager instance.
func NewManager(
	exchange broker.Exchange,
	journal storage.TradeJournal,
	logger logrus.FieldLogger,
	config ...Config,
) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if cfg.Quantity <= 0 {
		cfg.Quantity = DefaultConfig.Quantity
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}

	// Validate required dependencies (fail fast to avoid later panics)
	if exchange == nil {
		panic("orders.NewManager: exchange must not be nil")
	}
	if journal == nil {
		panic("orders.NewManager: journal must not be nil")
	}

	return &Manager{
		exchange: exchange,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
		config:   cfg,
	}
}

// Quantity returns the order size of one contract
func (m *Manager) Quantity() float64 {
	return m.config.Quantity
}

// Execute submits a market order for the fill and journals it once the
// exchange accepts it. Exchange errors are returned unchanged in the chain;
// a journal failure is logged and does not fail the order.
func (m *Manager) Execute(ctx context.Context, f Fill) (string, error) {
	if !f.Side.Valid() {
		return "", fmt.Errorf("invalid order side %q", f.Side)
	}
	if f.Symbol == "" {
		return "", errors.New("order symbol is required")
	}
	if f.Contracts < 1 {
		return "", fmt.Errorf("order for %s must be at least 1 contract, got %d", f.Symbol, f.Contracts)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()

	qty := m.config.Quantity * float64(f.Contracts)
	orderID, err := m.exchange.SubmitOrder(callCtx, f.Side, f.Symbol, qty)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", f.Side, f.Symbol, err)
	}

	m.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"symbol":   f.Symbol,
		"side":     f.Side,
		"qty":      qty,
	}).Info("Order placed")

	trade := storage.Trade{
		Timestamp:   m.now().UTC(),
		Symbol:      f.Symbol,
		Side:        string(f.Side),
		Quantity:    f.Contracts,
		Price:       f.Price,
		RealizedPnL: f.RealizedPnL,
	}
	// The fill is on the exchange now; journal it even if ctx was cancelled.
	journalCtx, cancelJournal := context.WithTimeout(context.WithoutCancel(ctx), m.config.CallTimeout)
	defer cancelJournal()
	if err := m.journal.RecordTrade(journalCtx, trade); err != nil {
		m.logger.WithError(err).WithField("order_id", orderID).Error("Failed to journal trade")
	}
	return orderID, nil
}
