package strategy

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/orders"
	"github.com/eddiefleurent/delta_neutral/internal/storage"
)

func sym(strike int, typ string) string {
	return fmt.Sprintf("BTC-21APR25-%d-%s-USDT", strike, typ)
}

// quote builds a quote for a BTC option; typ is "C" or "P"
func quote(strike int, typ string, delta, bid, ask float64) models.OptionQuote {
	c, err := models.ParseContract(sym(strike, typ))
	if err != nil {
		panic(err)
	}
	return models.OptionQuote{
		Contract:        c,
		IV:              0.6,
		Delta:           delta,
		UnderlyingPrice: 90000,
		Bid:             bid,
		Ask:             ask,
	}
}

func withIV(q models.OptionQuote, iv float64) models.OptionQuote {
	q.IV = iv
	return q
}

type placed struct {
	side   broker.OrderSide
	symbol string
	qty    float64
}

// scriptedExchange serves snapshots in order, repeating the last one
type scriptedExchange struct {
	fetchErr error
	orderErr error
	snaps    []*models.QuoteSnapshot
	orders   []placed
	fetches  int
}

func (s *scriptedExchange) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	i := s.fetches
	if i >= len(s.snaps) {
		i = len(s.snaps) - 1
	}
	s.fetches++
	return s.snaps[i], nil
}

func (s *scriptedExchange) SubmitOrder(ctx context.Context, side broker.OrderSide, symbol string, quantity float64) (string, error) {
	if s.orderErr != nil {
		return "", s.orderErr
	}
	s.orders = append(s.orders, placed{side, symbol, quantity})
	return fmt.Sprintf("o-%d", len(s.orders)), nil
}

func (s *scriptedExchange) orderSummary() []string {
	out := make([]string, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, string(o.side)+" "+o.symbol)
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type harness struct {
	exchange *scriptedExchange
	journal  *storage.MemoryJournal
	engine   *Engine
}

func newHarness(t *testing.T, trigger EntryTrigger, snaps ...*models.QuoteSnapshot) *harness {
	t.Helper()
	ex := &scriptedExchange{snaps: snaps}
	journal := storage.NewMemoryJournal()
	mgr := orders.NewManager(ex, journal, quietLogger())
	return &harness{
		exchange: ex,
		journal:  journal,
		engine:   NewEngine(mgr, trigger, DefaultConfig(), quietLogger()),
	}
}

// entrySnapshot sells the 100000 call and the 80000 put at target 0.1
func entrySnapshot() *models.QuoteSnapshot {
	return models.NewQuoteSnapshot(
		quote(90000, "C", 0.5, 3000, 3100),
		quote(100000, "C", 0.12, 500, 520),
		quote(105000, "C", 0.05, 200, 220),
		quote(80000, "P", -0.09, 450, 470),
		quote(90000, "P", -0.5, 2900, 3000),
	)
}
