package strategy

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/util"
)

// ExitSignal is the result of an exit threshold check
type ExitSignal string

const (
	ExitNone         ExitSignal = ""
	ExitProfitTarget ExitSignal = ExitSignal(models.ConditionProfitTarget)
	ExitStopLoss     ExitSignal = ExitSignal(models.ConditionStopLoss)
)

// Default exit thresholds as a fraction of the margin base
const (
	DefaultProfitTargetPct = 0.1
	DefaultStopLossPct     = 0.1
)

// ErrNonPositiveMarginBase is returned when exit thresholds cannot be computed
var ErrNonPositiveMarginBase = errors.New("margin base must be positive")

// Accountant evaluates P&L against the exit thresholds.
type Accountant struct {
	ProfitTargetPct float64
	StopLossPct     float64
}

// NewAccountant creates an Accountant; non-positive percentages take the defaults.
func NewAccountant(profitTargetPct, stopLossPct float64) *Accountant {
	if profitTargetPct <= 0 {
		profitTargetPct = DefaultProfitTargetPct
	}
	if stopLossPct <= 0 {
		stopLossPct = DefaultStopLossPct
	}
	return &Accountant{ProfitTargetPct: profitTargetPct, StopLossPct: stopLossPct}
}

// CheckExit compares total P&L with the thresholds. Profit target wins when
// both would fire.
func (a *Accountant) CheckExit(total, marginBase float64) (ExitSignal, error) {
	if marginBase <= 0 {
		return ExitNone, fmt.Errorf("%w: %.4f", ErrNonPositiveMarginBase, marginBase)
	}
	if total >= marginBase*a.ProfitTargetPct {
		return ExitProfitTarget, nil
	}
	if total <= -marginBase*a.StopLossPct {
		return ExitStopLoss, nil
	}
	return ExitNone, nil
}

// markBid is the bid-preferred mark of a symbol; 0 when it is not quoted
func markBid(snap *models.QuoteSnapshot, symbol string) float64 {
	q, ok := snap.Get(symbol)
	if !ok {
		return 0
	}
	return util.BidPreferredMark(q.Bid, q.Ask)
}

// markAsk is the ask-preferred mark of a symbol; 0 when it is not quoted
func markAsk(snap *models.QuoteSnapshot, symbol string) float64 {
	q, ok := snap.Get(symbol)
	if !ok {
		return 0
	}
	return util.AskPreferredMark(q.Bid, q.Ask)
}

// LegPnL is the open P&L of one short leg at the bid-preferred mark
func LegPnL(leg *models.Leg, snap *models.QuoteSnapshot) float64 {
	return (leg.EntryPrice - markBid(snap, leg.Symbol)) * float64(leg.Contracts)
}

// UnrealizedPnL sums LegPnL over the position's short legs
func UnrealizedPnL(pos *models.Position, snap *models.QuoteSnapshot) float64 {
	if pos == nil {
		return 0
	}
	total := 0.0
	for _, leg := range pos.Legs() {
		total += LegPnL(leg, snap)
	}
	return total
}

// TotalPnL is realized plus unrealized P&L
func TotalPnL(pos *models.Position, snap *models.QuoteSnapshot, realized float64) float64 {
	return realized + UnrealizedPnL(pos, snap)
}

// ClosingPnL is the P&L realized by buying a short leg back at the ask-preferred mark
func ClosingPnL(leg *models.Leg, snap *models.QuoteSnapshot) float64 {
	return (leg.EntryPrice - markAsk(snap, leg.Symbol)) * float64(leg.Contracts)
}
