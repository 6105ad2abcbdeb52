// Package storage records executed trades.
package storage

import (
	"context"
	"time"
)

// Trade is one executed order as written to the trade journal.
type Trade struct {
	Timestamp   time.Time
	Symbol      string
	Side        string
	Quantity    int // contracts
	Price       float64
	RealizedPnL float64
}

// TradeJournal defines the contract for recording executed trades.
//
// Implementations must be safe for concurrent use.
type TradeJournal interface {
	RecordTrade(ctx context.Context, trade Trade) error
}

// Ensure implementations satisfy TradeJournal
var (
	_ TradeJournal = (*CSVJournal)(nil)
	_ TradeJournal = (*MemoryJournal)(nil)
)
