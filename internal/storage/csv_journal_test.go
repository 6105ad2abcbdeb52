package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path) // #nosec G304 -- test temp file
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCSVJournal_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	ts := time.Date(2025, 4, 19, 8, 30, 5, 0, time.UTC)

	j, err := NewCSVJournal(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(context.Background(), Trade{
		Timestamp: ts, Symbol: "BTC-21APR25-95000-C-USDT", Side: "Sell", Quantity: 1, Price: 1500,
	}))
	require.NoError(t, j.RecordTrade(context.Background(), Trade{
		Timestamp: ts, Symbol: "BTC-21APR25-95000-C-USDT", Side: "Buy", Quantity: 1, Price: 1250.5, RealizedPnL: 249.5,
	}))
	require.NoError(t, j.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,Symbol,Side,Quantity,Price,Realized_PnL", lines[0])
	assert.Equal(t, "2025-04-19 08:30:05,BTC-21APR25-95000-C-USDT,Sell,1,1500,0.0000", lines[1])
	assert.Equal(t, "2025-04-19 08:30:05,BTC-21APR25-95000-C-USDT,Buy,1,1250.5,249.5000", lines[2])
}

func TestCSVJournal_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	first, err := NewCSVJournal(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, first.RecordTrade(context.Background(), Trade{Symbol: "A", Side: "Sell", Quantity: 1, Price: 1}))
	require.NoError(t, first.Close())

	second, err := NewCSVJournal(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, second.RecordTrade(context.Background(), Trade{Symbol: "B", Side: "Buy", Quantity: 1, Price: 2}))
	require.NoError(t, second.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3, "header must not be repeated on reopen")
	assert.True(t, strings.HasPrefix(lines[0], "Timestamp,"))
	assert.Contains(t, lines[2], ",B,Buy,1,2,")
}

func TestCSVJournal_PnLRoundsToFourDecimals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSVJournal(path, quietLogger())
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(context.Background(), Trade{Symbol: "X", Side: "Buy", Quantity: 1, Price: 1, RealizedPnL: -12.34567}))
	require.NoError(t, j.Close())

	lines := readLines(t, path)
	assert.True(t, strings.HasSuffix(lines[1], ",-12.3457"), lines[1])
}

func TestCSVJournal_ClosedAndCancelled(t *testing.T) {
	j, err := NewCSVJournal(filepath.Join(t.TempDir(), "trades.csv"), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, j.RecordTrade(ctx, Trade{Symbol: "X"}), context.Canceled)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.RecordTrade(context.Background(), Trade{Symbol: "X"}), ErrJournalClosed)
}

func TestMemoryJournal(t *testing.T) {
	m := NewMemoryJournal()
	require.NoError(t, m.RecordTrade(context.Background(), Trade{Symbol: "A"}))
	require.NoError(t, m.RecordTrade(context.Background(), Trade{Symbol: "B"}))

	trades := m.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "A", trades[0].Symbol)

	trades[0].Symbol = "mutated"
	assert.Equal(t, "A", m.Trades()[0].Symbol)

	m.SetRecordError(ErrJournalClosed)
	assert.ErrorIs(t, m.RecordTrade(context.Background(), Trade{}), ErrJournalClosed)
}
