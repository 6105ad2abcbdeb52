package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/util"
)

func openPosition(call, put models.OptionQuote, callEntry, putEntry float64) *models.Position {
	pos := models.NewPosition("test")
	pos.Call = models.NewLeg(call, callEntry, 0.01)
	pos.Put = models.NewLeg(put, putEntry, 0.01)
	return pos
}

func TestUnrealizedPnL(t *testing.T) {
	call := quote(100000, "C", 0.1, 400, 420)
	put := quote(80000, "P", -0.1, 0, 300) // no bid, marks at ask
	pos := openPosition(call, put, 500, 450)
	snap := models.NewQuoteSnapshot(call, put)

	// (500-400) + (450-300)
	if got := UnrealizedPnL(pos, snap); math.Abs(got-250) > 1e-9 {
		t.Errorf("UnrealizedPnL() = %v, want 250", got)
	}
	if got := TotalPnL(pos, snap, -20); math.Abs(got-230) > 1e-9 {
		t.Errorf("TotalPnL() = %v, want 230", got)
	}
}

func TestUnrealizedPnL_EdgeCases(t *testing.T) {
	if got := UnrealizedPnL(models.NewPosition("flat"), models.NewQuoteSnapshot()); got != 0 {
		t.Errorf("flat position UnrealizedPnL() = %v, want 0", got)
	}
	if got := UnrealizedPnL(nil, nil); got != 0 {
		t.Errorf("nil position UnrealizedPnL() = %v, want 0", got)
	}

	call := quote(100000, "C", 0.1, 400, 420)
	put := quote(80000, "P", -0.1, 0, 0) // illiquid, marks at 0
	pos := openPosition(call, put, 500, 450)
	// call missing from snapshot also marks at 0
	snap := models.NewQuoteSnapshot(put)
	if got := UnrealizedPnL(pos, snap); math.Abs(got-950) > 1e-9 {
		t.Errorf("UnrealizedPnL() = %v, want 950", got)
	}
}

func TestClosingPnL_UsesAskPreferredMark(t *testing.T) {
	call := quote(100000, "C", 0.1, 400, 420)
	leg := models.NewLeg(call, 500, 0.01)
	leg.Contracts = 2
	snap := models.NewQuoteSnapshot(call)

	if got := ClosingPnL(leg, snap); math.Abs(got-160) > 1e-9 {
		t.Errorf("ClosingPnL() = %v, want 160", got)
	}

	noAsk := quote(100000, "C", 0.1, 400, 0)
	if got := ClosingPnL(models.NewLeg(noAsk, 500, 0.01), models.NewQuoteSnapshot(noAsk)); math.Abs(got-100) > 1e-9 {
		t.Errorf("ClosingPnL() without ask = %v, want 100", got)
	}
}

func TestCheckExit(t *testing.T) {
	a := NewAccountant(0, 0)
	tests := []struct {
		name  string
		total float64
		base  float64
		want  ExitSignal
	}{
		{"profit at threshold", 100, 1000, ExitProfitTarget},
		{"profit above threshold", 200, 1000, ExitProfitTarget},
		{"just below profit", 99.99, 1000, ExitNone},
		{"flat", 0, 1000, ExitNone},
		{"just above stop", -99.99, 1000, ExitNone},
		{"stop at threshold", -100, 1000, ExitStopLoss},
		{"stop beyond threshold", -500, 1000, ExitStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.CheckExit(tt.total, tt.base)
			if err != nil {
				t.Fatalf("CheckExit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CheckExit(%v, %v) = %q, want %q", tt.total, tt.base, got, tt.want)
			}
		})
	}
}

func TestCheckExit_SmallMarginBase(t *testing.T) {
	a := NewAccountant(0.1, 0.1)
	tests := []struct {
		total float64
		want  ExitSignal
	}{
		{2.0, ExitProfitTarget},
		{-2.0, ExitStopLoss},
		{1.0, ExitNone},
	}
	for _, tt := range tests {
		got, err := a.CheckExit(tt.total, 20)
		if err != nil {
			t.Fatalf("CheckExit(%v, 20) error = %v", tt.total, err)
		}
		if got != tt.want {
			t.Errorf("CheckExit(%v, 20) = %q, want %q", tt.total, got, tt.want)
		}
	}
}

func TestCheckExit_ProfitEvaluatedFirst(t *testing.T) {
	// A negative stop percentage makes both thresholds match
	a := &Accountant{ProfitTargetPct: 0.1, StopLossPct: -0.5}
	got, err := a.CheckExit(10, 100)
	if err != nil || got != ExitProfitTarget {
		t.Errorf("CheckExit() = %q, %v; want profit target", got, err)
	}
}

func TestCheckExit_NonPositiveMarginBase(t *testing.T) {
	a := NewAccountant(0.1, 0.1)
	for _, base := range []float64{0, -1} {
		got, err := a.CheckExit(1000, base)
		if !errors.Is(err, ErrNonPositiveMarginBase) {
			t.Errorf("CheckExit(base=%v) error = %v, want ErrNonPositiveMarginBase", base, err)
		}
		if got != ExitNone {
			t.Errorf("CheckExit(base=%v) = %q, want no signal", base, got)
		}
	}
}

func TestCheckExit_ConfiguredPercentages(t *testing.T) {
	a := NewAccountant(0.5, 0.25)
	if got, _ := a.CheckExit(49, 100); got != ExitNone {
		t.Errorf("49 of 100 at 50%% target = %q", got)
	}
	if got, _ := a.CheckExit(-25, 100); got != ExitStopLoss {
		t.Errorf("-25 of 100 at 25%% stop = %q", got)
	}
}

func TestRealizedPnLRoundTripsAtFourDecimals(t *testing.T) {
	call := quote(100000, "C", 0.1, 0, 123.45678)
	leg := models.NewLeg(call, 200.12344, 0.01)
	pnl := ClosingPnL(leg, models.NewQuoteSnapshot(call))
	if got := util.RoundPnL(pnl); math.Abs(got-76.6667) > 1e-9 {
		t.Errorf("RoundPnL(%v) = %v, want 76.6667", pnl, got)
	}
}
