package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/delta_neutral/internal/models"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	// SideBuy opens a long or closes a short
	SideBuy OrderSide = "Buy"
	// SideSell opens a short
	SideSell OrderSide = "Sell"
)

// Valid returns true if the OrderSide is one of the defined constants
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Exchange defines the interface for quoting and trading options.
// Orders are market orders assumed to fill immediately.
type Exchange interface {
	FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error)
	SubmitOrder(ctx context.Context, side OrderSide, symbol string, quantity float64) (string, error)
}

// Ensure implementations satisfy Exchange at compile time.
var (
	_ Exchange = (*CoinswitchBybit)(nil)
	_ Exchange = (*PaperExchange)(nil)
	_ Exchange = (*CircuitBreakerExchange)(nil)
)

// PaperExchange reads real quotes but simulates fills: orders are logged and
// given a synthetic ID without reaching the exchange.
type PaperExchange struct {
	quotes Exchange
	logger logrus.FieldLogger
}

// NewPaperExchange wraps a quote source for paper trading
func NewPaperExchange(quotes Exchange, logger logrus.FieldLogger) *PaperExchange {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PaperExchange{quotes: quotes, logger: logger}
}

// FetchQuotes delegates to the wrapped exchange
func (p *PaperExchange) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	return p.quotes.FetchQuotes(ctx, baseAsset, expiry)
}

// SubmitOrder logs the order and returns a synthetic ID
func (p *PaperExchange) SubmitOrder(ctx context.Context, side OrderSide, symbol string, quantity float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "paper-" + uuid.New().String()
	p.logger.WithFields(logrus.Fields{
		"symbol": symbol, "side": side, "qty": quantity, "order_id": id,
	}).Info("Paper order filled")
	return id, nil
}

// CircuitBreakerExchange wraps an Exchange with circuit breaker functionality
type CircuitBreakerExchange struct {
	exchange Exchange
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings mirrors the defaults used for live trading
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerExchange creates a CircuitBreakerExchange with default settings
func NewCircuitBreakerExchange(exchange Exchange, logger logrus.FieldLogger) *CircuitBreakerExchange {
	return NewCircuitBreakerExchangeWithSettings(exchange, DefaultCircuitBreakerSettings, logger)
}

// NewCircuitBreakerExchangeWithSettings creates a CircuitBreakerExchange with custom settings
func NewCircuitBreakerExchangeWithSettings(exchange Exchange, settings CircuitBreakerSettings,
	logger logrus.FieldLogger) *CircuitBreakerExchange {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "ExchangeCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// Context cancellation is the caller's doing, not an exchange fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerExchange{
		exchange: exchange,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// State returns the current breaker state
func (c *CircuitBreakerExchange) State() gobreaker.State {
	return c.breaker.State()
}

// FetchQuotes wraps the underlying exchange call with circuit breaker
func (c *CircuitBreakerExchange) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	return execCircuitBreaker(c.breaker, func() (*models.QuoteSnapshot, error) {
		return c.exchange.FetchQuotes(ctx, baseAsset, expiry)
	})
}

// SubmitOrder wraps the underlying exchange call with circuit breaker
func (c *CircuitBreakerExchange) SubmitOrder(ctx context.Context, side OrderSide, symbol string,
	quantity float64) (string, error) {
	return execCircuitBreaker(c.breaker, func() (string, error) {
		return c.exchange.SubmitOrder(ctx, side, symbol, quantity)
	})
}
