package orders

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/storage"
)

type submitted struct {
	side   broker.OrderSide
	symbol string
	qty    float64
}

// mockExchangeForOrders implements broker.Exchange for testing
type mockExchangeForOrders struct {
	orderError  error
	onSubmit    func()
	orders      []submitted
	hadDeadline bool
}

func (m *mockExchangeForOrders) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	return models.NewQuoteSnapshot(), nil
}

func (m *mockExchangeForOrders) SubmitOrder(ctx context.Context, side broker.OrderSide, symbol string, quantity float64) (string, error) {
	_, m.hadDeadline = ctx.Deadline()
	if m.onSubmit != nil {
		m.onSubmit()
	}
	if m.orderError != nil {
		return "", m.orderError
	}
	m.orders = append(m.orders, submitted{side, symbol, quantity})
	return "ord-1", nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(&mockExchangeForOrders{}, storage.NewMemoryJournal(), nil, Config{})
	assert.Equal(t, DefaultConfig.Quantity, m.Quantity())
	assert.Equal(t, DefaultConfig.CallTimeout, m.config.CallTimeout)
}

func TestNewManager_PanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewManager(nil, storage.NewMemoryJournal(), nil) })
	assert.Panics(t, func() { NewManager(&mockExchangeForOrders{}, nil, nil) })
}

func TestExecute_SubmitsAndJournals(t *testing.T) {
	ex := &mockExchangeForOrders{}
	journal := storage.NewMemoryJournal()
	m := NewManager(ex, journal, quietLogger(), Config{Quantity: 0.01, CallTimeout: time.Second})
	fixed := time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	id, err := m.Execute(context.Background(), Fill{
		Side: broker.SideBuy, Symbol: "BTC-21APR25-90000-P-USDT", Price: 420, Contracts: 2, RealizedPnL: -12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	assert.True(t, ex.hadDeadline, "exchange call must be bounded by CallTimeout")

	require.Len(t, ex.orders, 1)
	assert.Equal(t, broker.SideBuy, ex.orders[0].side)
	assert.InDelta(t, 0.02, ex.orders[0].qty, 1e-12)

	trades := journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, storage.Trade{
		Timestamp: fixed, Symbol: "BTC-21APR25-90000-P-USDT", Side: "Buy", Quantity: 2, Price: 420, RealizedPnL: -12.5,
	}, trades[0])
}

func TestExecute_ExchangeErrorSkipsJournal(t *testing.T) {
	apiErr := &broker.APIError{Status: 200, RetCode: 110007, Body: "insufficient balance"}
	journal := storage.NewMemoryJournal()
	m := NewManager(&mockExchangeForOrders{orderError: apiErr}, journal, quietLogger())

	_, err := m.Execute(context.Background(), Fill{Side: broker.SideSell, Symbol: "X", Contracts: 1})
	require.Error(t, err)

	var target *broker.APIError
	assert.True(t, errors.As(err, &target))
	assert.Empty(t, journal.Trades())
}

func TestExecute_JournalFailureIsNotFatal(t *testing.T) {
	journal := storage.NewMemoryJournal()
	journal.SetRecordError(storage.ErrJournalClosed)
	m := NewManager(&mockExchangeForOrders{}, journal, quietLogger())

	id, err := m.Execute(context.Background(), Fill{Side: broker.SideSell, Symbol: "X", Contracts: 1})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
}

func TestExecute_Validation(t *testing.T) {
	ex := &mockExchangeForOrders{}
	m := NewManager(ex, storage.NewMemoryJournal(), quietLogger())

	tests := []struct {
		name string
		fill Fill
	}{
		{"bad side", Fill{Side: "Short", Symbol: "X", Contracts: 1}},
		{"no symbol", Fill{Side: broker.SideSell, Contracts: 1}},
		{"zero contracts", Fill{Side: broker.SideSell, Symbol: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Execute(context.Background(), tt.fill)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, ex.orders)
}

func TestExecute_JournalsFillWhenCancelledMidOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	journal, err := storage.NewCSVJournal(path, quietLogger())
	require.NoError(t, err)
	defer journal.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// shutdown signal arrives while the order is at the exchange
	ex := &mockExchangeForOrders{onSubmit: cancel}
	m := NewManager(ex, journal, quietLogger(), Config{Quantity: 0.01, CallTimeout: time.Second})

	id, err := m.Execute(ctx, Fill{
		Side: broker.SideSell, Symbol: "BTC-21APR25-100000-C-USDT", Price: 500, Contracts: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	require.Error(t, ctx.Err())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "BTC-21APR25-100000-C-USDT,Sell,1,500,")
}
