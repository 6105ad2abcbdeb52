package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

// TimestampFormat is the UTC layout of the Timestamp column
const TimestampFormat = "2006-01-02 15:04:05"

// tradeRow is the on-disk shape of a Trade
type tradeRow struct {
	Timestamp   string `csv:"Timestamp"`
	Symbol      string `csv:"Symbol"`
	Side        string `csv:"Side"`
	Quantity    int    `csv:"Quantity"`
	Price       string `csv:"Price"`
	RealizedPnL string `csv:"Realized_PnL"`
}

func newTradeRow(t Trade) tradeRow {
	return tradeRow{
		Timestamp:   t.Timestamp.UTC().Format(TimestampFormat),
		Symbol:      t.Symbol,
		Side:        t.Side,
		Quantity:    t.Quantity,
		Price:       strconv.FormatFloat(t.Price, 'f', -1, 64),
		RealizedPnL: strconv.FormatFloat(t.RealizedPnL, 'f', 4, 64),
	}
}

// CSVJournal appends trades to a CSV file. The header row is written once,
// when the file is empty.
type CSVJournal struct {
	file      *os.File
	logger    logrus.FieldLogger
	now       func() time.Time
	path      string
	mu        sync.Mutex
	hasHeader bool
	closed    bool
}

// NewCSVJournal opens (or creates) the journal file at path
func NewCSVJournal(path string, logger logrus.FieldLogger) (*CSVJournal, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, fmt.Errorf("opening trade journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat trade journal: %w", err)
	}
	return &CSVJournal{
		file:      f,
		logger:    logger,
		now:       time.Now,
		path:      path,
		hasHeader: info.Size() > 0,
	}, nil
}

// Path returns the journal file path
func (j *CSVJournal) Path() string {
	return j.path
}

// RecordTrade appends one row. A zero Timestamp is stamped with the current time.
func (j *CSVJournal) RecordTrade(ctx context.Context, trade Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = j.now()
	}
	rows := []tradeRow{newTradeRow(trade)}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}

	var err error
	if j.hasHeader {
		err = gocsv.MarshalWithoutHeaders(&rows, j.file)
	} else {
		err = gocsv.MarshalFile(&rows, j.file)
	}
	if err != nil {
		return fmt.Errorf("writing trade: %w", err)
	}
	j.hasHeader = true

	j.logger.WithFields(logrus.Fields{
		"symbol": trade.Symbol,
		"side":   trade.Side,
		"qty":    trade.Quantity,
		"price":  trade.Price,
		"pnl":    rows[0].RealizedPnL,
	}).Info("Trade logged")
	return nil
}

// Close flushes and closes the file
func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Sync(); err != nil {
		_ = j.file.Close()
		return fmt.Errorf("syncing trade journal: %w", err)
	}
	return j.file.Close()
}
