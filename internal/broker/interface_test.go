package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/delta_neutral/internal/models"
)

// fakeExchange implements Exchange for wrapper testing
type fakeExchange struct {
	snapshot  *models.QuoteSnapshot
	err       error
	calls     int
	orderSeen []string
}

func (f *fakeExchange) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, side OrderSide, symbol string, quantity float64) (string, error) {
	f.calls++
	f.orderSeen = append(f.orderSeen, symbol)
	if f.err != nil {
		return "", f.err
	}
	return "live-1", nil
}

func TestOrderSide_Valid(t *testing.T) {
	assert.True(t, SideBuy.Valid())
	assert.True(t, SideSell.Valid())
	assert.False(t, OrderSide("buy").Valid())
}

func TestPaperExchange(t *testing.T) {
	inner := &fakeExchange{snapshot: models.NewQuoteSnapshot()}
	p := NewPaperExchange(inner, quietLogger())

	snap, err := p.FetchQuotes(context.Background(), "BTC", "21APR25")
	require.NoError(t, err)
	assert.Same(t, inner.snapshot, snap)

	id, err := p.SubmitOrder(context.Background(), SideSell, "BTC-21APR25-95000-C-USDT", 0.01)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "paper-"))
	assert.Empty(t, inner.orderSeen, "paper orders never reach the exchange")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SubmitOrder(ctx, SideBuy, "X", 0.01)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerExchange_PassThrough(t *testing.T) {
	inner := &fakeExchange{snapshot: models.NewQuoteSnapshot()}
	cb := NewCircuitBreakerExchange(inner, quietLogger())

	snap, err := cb.FetchQuotes(context.Background(), "BTC", "21APR25")
	require.NoError(t, err)
	assert.Same(t, inner.snapshot, snap)

	id, err := cb.SubmitOrder(context.Background(), SideBuy, "X", 0.01)
	require.NoError(t, err)
	assert.Equal(t, "live-1", id)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerExchange_Trips(t *testing.T) {
	inner := &fakeExchange{err: &APIError{Status: 503, Body: "unavailable"}}
	cb := NewCircuitBreakerExchangeWithSettings(inner, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.5,
	}, quietLogger())

	_, err := cb.FetchQuotes(context.Background(), "BTC", "21APR25")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "first failure surfaces the exchange error")

	_, err = cb.FetchQuotes(context.Background(), "BTC", "21APR25")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, 1, inner.calls, "open breaker short-circuits the exchange")
}

func TestCircuitBreakerExchange_CancellationDoesNotTrip(t *testing.T) {
	inner := &fakeExchange{err: context.Canceled}
	cb := NewCircuitBreakerExchangeWithSettings(inner, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.5,
	}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.SubmitOrder(context.Background(), SideBuy, "X", 0.01)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
