package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/orders"
	"github.com/eddiefleurent/delta_neutral/internal/util"
)

// Strategy defaults
const (
	DefaultEntryTargetDelta = 0.1
	DefaultDeltaBand        = 0.1
)

var (
	// ErrNoATMQuote is returned by Enter when the snapshot holds no call
	ErrNoATMQuote = errors.New("no ATM call quote in snapshot")
	// ErrWrongState is returned when a step runs in a state it does not handle
	ErrWrongState = errors.New("position is not in the required state")
)

// Config holds strategy parameters.
type Config struct {
	EntryTargetDelta  float64
	DeltaBand         float64
	ProfitTargetPct   float64
	StopLossPct       float64
	WingStrikeEpsilon float64
}

// DefaultConfig returns the standard strategy parameters
func DefaultConfig() Config {
	return Config{
		EntryTargetDelta:  DefaultEntryTargetDelta,
		DeltaBand:         DefaultDeltaBand,
		ProfitTargetPct:   DefaultProfitTargetPct,
		StopLossPct:       DefaultStopLossPct,
		WingStrikeEpsilon: models.StrikeMatchEpsilon,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EntryTargetDelta <= 0 {
		c.EntryTargetDelta = d.EntryTargetDelta
	}
	if c.DeltaBand <= 0 {
		c.DeltaBand = d.DeltaBand
	}
	if c.ProfitTargetPct <= 0 {
		c.ProfitTargetPct = d.ProfitTargetPct
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = d.StopLossPct
	}
	if c.WingStrikeEpsilon <= 0 {
		c.WingStrikeEpsilon = d.WingStrikeEpsilon
	}
	return c
}

// OutcomeKind tags the result of a lifecycle step
type OutcomeKind int

const (
	OutcomeStay OutcomeKind = iota
	OutcomeEntered
	OutcomeRebalanced
	OutcomeExited
	OutcomeConverted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeStay:
		return "stay"
	case OutcomeEntered:
		return "entered"
	case OutcomeRebalanced:
		return "rebalanced"
	case OutcomeExited:
		return "exited"
	case OutcomeConverted:
		return "converted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is returned by every lifecycle step
type Outcome struct {
	Kind OutcomeKind
	// Reason explains a Stay
	Reason     string
	ExitSignal ExitSignal
	// Side, OldSymbol and NewSymbol describe a roll
	Side      models.OptionType
	OldSymbol string
	NewSymbol string
	Wings     []string
}

// Stay reasons
const (
	ReasonNoSpike          = "no_spike"
	ReasonMissingLeg       = "missing_entry_leg"
	ReasonNoMarginBase     = "non_positive_margin_base"
	ReasonInBand           = "delta_in_band"
	ReasonNoReplacement    = "no_replacement"
	ReasonNotStraddle      = "not_straddle"
	ReasonWingsUnavailable = "wings_unavailable"
)

func stay(reason string) Outcome {
	return Outcome{Kind: OutcomeStay, Reason: reason}
}

// Status is a read-only view of the engine for other goroutines
type Status struct {
	UpdatedAt      time.Time            `json:"updated_at"`
	Position       *models.Position     `json:"position"`
	State          models.PositionState `json:"state"`
	Description    string               `json:"description"`
	RealizedPnL    float64              `json:"realized_pnl"`
	UnrealizedPnL  float64              `json:"unrealized_pnl"`
	MarginBase     float64              `json:"margin_base"`
	NetDelta       float64              `json:"net_delta"`
	RebalanceCount int                  `json:"rebalance_count"`
}

// Engine owns the position and P&L accumulators. Lifecycle steps must be
// called from a single goroutine; Status may be read from any.
type Engine struct {
	exec       *orders.Manager
	trigger    EntryTrigger
	accountant *Accountant
	logger     logrus.FieldLogger
	position   *models.Position
	status     Status
	config     Config
	realized   float64
	marginBase float64
	mu         sync.RWMutex
	triggered  bool
}

// NewEngine creates an engine with a fresh position in the entering state
func NewEngine(exec *orders.Manager, trigger EntryTrigger, cfg Config, logger logrus.FieldLogger) *Engine {
	if exec == nil {
		panic("strategy.NewEngine: order manager must not be nil")
	}
	if trigger == nil {
		trigger = NewIVSpikeTrigger(DefaultSpikeRatio, DefaultSmoothing)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		exec:       exec,
		trigger:    trigger,
		accountant: NewAccountant(cfg.ProfitTargetPct, cfg.StopLossPct),
		logger:     logger,
		position:   models.NewPosition(uuid.New().String()),
		config:     cfg,
	}
	e.publish(nil)
	return e
}

// State returns the lifecycle state
func (e *Engine) State() models.PositionState {
	return e.position.GetCurrentState()
}

// RealizedPnL returns the accumulated realized P&L
func (e *Engine) RealizedPnL() float64 {
	return e.realized
}

// MarginBase returns the premium collected at entry
func (e *Engine) MarginBase() float64 {
	return e.marginBase
}

// Position returns a copy of the live position
func (e *Engine) Position() *models.Position {
	return e.position.Copy()
}

// Status returns the last published status
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Position = s.Position.Copy()
	return s
}

func (e *Engine) publish(snap *models.QuoteSnapshot) {
	if err := e.position.ValidateState(); err != nil {
		e.logger.WithError(err).Error("Position state inconsistent")
	}
	s := Status{
		UpdatedAt:      time.Now().UTC(),
		Position:       e.position.Copy(),
		State:          e.position.GetCurrentState(),
		Description:    e.position.GetStateDescription(),
		RealizedPnL:    util.RoundPnL(e.realized),
		MarginBase:     e.marginBase,
		RebalanceCount: e.position.RebalanceCount(),
	}
	if snap != nil {
		s.UnrealizedPnL = util.RoundPnL(UnrealizedPnL(e.position, snap))
		if e.position.IsOpen() {
			s.NetDelta = e.netDelta(snap)
		}
	}
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) requireState(want models.PositionState) error {
	if got := e.position.GetCurrentState(); got != want {
		return fmt.Errorf("%w: want %s, have %s", ErrWrongState, want, got)
	}
	return nil
}

// Enter watches ATM IV and opens the short call and put once the entry
// trigger fires. Once fired the trigger stays latched, so a poll that is
// missing a leg is retried without waiting for another spike.
func (e *Engine) Enter(ctx context.Context, snap *models.QuoteSnapshot) (Outcome, error) {
	if err := e.requireState(models.StateEntering); err != nil {
		return Outcome{}, err
	}

	atm, ok := FindATM(snap)
	if !ok {
		return Outcome{}, ErrNoATMQuote
	}
	e.logger.WithFields(logrus.Fields{
		"symbol": atm.Symbol(),
		"iv":     atm.IV,
		"delta":  atm.Delta,
	}).Debug("ATM quote")

	if !e.triggered {
		if !e.trigger.ShouldEnter(atm.IV) {
			fields := logrus.Fields{"atm_iv": fmt.Sprintf("%.2f", atm.IV)}
			if b, ok := e.trigger.(interface{ Baseline() float64 }); ok {
				fields["baseline"] = fmt.Sprintf("%.2f", b.Baseline())
			}
			e.logger.WithFields(fields).Info("No spike yet")
			return stay(ReasonNoSpike), nil
		}
		e.triggered = true
		e.logger.WithField("atm_iv", fmt.Sprintf("%.2f", atm.IV)).Info("Entry triggered")
	}

	call, put := SelectEntryLegs(snap, e.config.EntryTargetDelta)
	if call == nil || put == nil {
		e.logger.WithFields(logrus.Fields{
			"call_found": call != nil,
			"put_found":  put != nil,
		}).Warn("Entry leg missing from snapshot, retrying")
		return stay(ReasonMissingLeg), nil
	}

	callEntry := util.BidPreferredMark(call.Bid, call.Ask)
	putEntry := util.BidPreferredMark(put.Bid, put.Ask)
	margin := callEntry + putEntry
	if margin <= 0 {
		e.logger.WithFields(logrus.Fields{
			"call": call.Symbol(), "put": put.Symbol(),
		}).Warn("Entry legs have no price, refusing zero margin base")
		return stay(ReasonNoMarginBase), nil
	}

	e.logger.WithFields(logrus.Fields{
		"call": call.Symbol(), "call_delta": call.Delta,
		"put": put.Symbol(), "put_delta": put.Delta,
	}).Info("Selected entry legs")

	for _, sel := range []struct {
		quote *models.OptionQuote
		price float64
	}{{call, callEntry}, {put, putEntry}} {
		if _, err := e.exec.Execute(ctx, orders.Fill{
			Side:      broker.SideSell,
			Symbol:    sel.quote.Symbol(),
			Price:     sel.price,
			Contracts: 1,
		}); err != nil {
			return Outcome{}, fmt.Errorf("opening %s leg: %w", sel.quote.Contract.Type, err)
		}
		e.position.SetLeg(sel.quote.Contract.Type, models.NewLeg(*sel.quote, sel.price, e.exec.Quantity()))
	}

	e.marginBase = margin
	if err := e.position.TransitionState(models.StateOpen, models.ConditionEntryTriggered); err != nil {
		return Outcome{}, err
	}
	e.logger.WithFields(logrus.Fields{
		"position_id": e.position.ID,
		"margin_base": fmt.Sprintf("%.4f", margin),
	}).Info("Entered short position")
	e.publish(snap)
	return Outcome{Kind: OutcomeEntered}, nil
}

// contribution is a leg's signed delta at current quotes; unquoted legs count 0
func contribution(leg *models.Leg, snap *models.QuoteSnapshot) float64 {
	q, ok := snap.Get(leg.Symbol)
	if !ok {
		return 0
	}
	return q.Delta * float64(leg.Contracts)
}

func (e *Engine) netDelta(snap *models.QuoteSnapshot) float64 {
	return contribution(e.position.Call, snap) + contribution(e.position.Put, snap)
}

// Evaluate runs one OPEN step: exit check first, then the delta band.
func (e *Engine) Evaluate(ctx context.Context, snap *models.QuoteSnapshot) (Outcome, error) {
	if err := e.requireState(models.StateOpen); err != nil {
		return Outcome{}, err
	}
	defer e.publish(snap)

	unrealized := UnrealizedPnL(e.position, snap)
	total := TotalPnL(e.position, snap, e.realized)
	signal, err := e.accountant.CheckExit(total, e.marginBase)
	if err != nil {
		return Outcome{}, err
	}
	e.logger.WithFields(logrus.Fields{
		"realized":    fmt.Sprintf("%.4f", e.realized),
		"unrealized":  fmt.Sprintf("%.4f", unrealized),
		"total":       fmt.Sprintf("%.4f", total),
		"margin_base": fmt.Sprintf("%.4f", e.marginBase),
	}).Info("P&L check")

	if signal != ExitNone {
		return e.exit(ctx, snap, signal)
	}

	callC := contribution(e.position.Call, snap)
	putC := contribution(e.position.Put, snap)
	net := callC + putC
	e.logger.WithFields(logrus.Fields{
		"net": fmt.Sprintf("%.3f", net), "call": fmt.Sprintf("%.3f", callC), "put": fmt.Sprintf("%.3f", putC),
	}).Info("Current net delta")

	if math.Abs(net) <= e.config.DeltaBand {
		return stay(ReasonInBand), nil
	}
	return e.rebalance(ctx, snap, callC, putC)
}

func (e *Engine) exit(ctx context.Context, snap *models.QuoteSnapshot, signal ExitSignal) (Outcome, error) {
	if err := e.position.TransitionState(models.StateExiting, string(signal)); err != nil {
		return Outcome{}, err
	}
	e.logger.WithField("reason", signal).Info("Exit threshold reached, closing position")

	for _, side := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
		leg := e.position.Leg(side)
		if leg == nil {
			continue
		}
		pnl := ClosingPnL(leg, snap)
		e.realized += pnl
		if _, err := e.exec.Execute(ctx, orders.Fill{
			Side:        broker.SideBuy,
			Symbol:      leg.Symbol,
			Price:       markAsk(snap, leg.Symbol),
			Contracts:   leg.Contracts,
			RealizedPnL: pnl,
		}); err != nil {
			return Outcome{}, fmt.Errorf("closing %s leg: %w", side, err)
		}
		e.position.SetLeg(side, nil)
	}

	if err := e.position.TransitionState(models.StateExited, models.ConditionLegsClosed); err != nil {
		return Outcome{}, err
	}
	e.logger.WithFields(logrus.Fields{
		"reason":   signal,
		"realized": fmt.Sprintf("%.4f", e.realized),
	}).Info("Position closed")
	return Outcome{Kind: OutcomeExited, ExitSignal: signal}, nil
}

// rebalance rolls the leg contributing less delta into a contract matching
// the stronger leg's delta magnitude.
func (e *Engine) rebalance(ctx context.Context, snap *models.QuoteSnapshot, callC, putC float64) (Outcome, error) {
	if err := e.position.TransitionState(models.StateRebalancing, models.ConditionDeltaOutOfBand); err != nil {
		return Outcome{}, err
	}

	weakSide, strong := models.OptionTypePut, e.position.Call
	strongC := callC
	if math.Abs(callC) < math.Abs(putC) {
		weakSide, strong = models.OptionTypeCall, e.position.Put
		strongC = putC
	}
	weak := e.position.Leg(weakSide)
	target := math.Abs(strongC) / float64(strong.Contracts)

	replacement, ok := SelectLeg(snap, weakSide, target)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"side": weakSide, "target": fmt.Sprintf("%.3f", target),
		}).Warn("No replacement candidate, keeping leg")
		if err := e.position.TransitionState(models.StateOpen, models.ConditionNoReplacement); err != nil {
			return Outcome{}, err
		}
		return stay(ReasonNoReplacement), nil
	}

	closePrice := markBid(snap, weak.Symbol)
	pnl := (weak.EntryPrice - closePrice) * float64(weak.Contracts)
	e.realized += pnl
	if _, err := e.exec.Execute(ctx, orders.Fill{
		Side:        broker.SideBuy,
		Symbol:      weak.Symbol,
		Price:       closePrice,
		Contracts:   weak.Contracts,
		RealizedPnL: pnl,
	}); err != nil {
		return Outcome{}, fmt.Errorf("closing %s leg for roll: %w", weakSide, err)
	}

	entry := util.BidPreferredMark(replacement.Bid, replacement.Ask)
	if _, err := e.exec.Execute(ctx, orders.Fill{
		Side:      broker.SideSell,
		Symbol:    replacement.Symbol(),
		Price:     entry,
		Contracts: 1,
	}); err != nil {
		return Outcome{}, fmt.Errorf("opening replacement %s leg: %w", weakSide, err)
	}

	e.position.SetLeg(weakSide, models.NewLeg(replacement, entry, e.exec.Quantity()))
	e.position.AddAdjustment(models.Adjustment{
		Type:        models.AdjustmentRoll,
		Side:        weakSide,
		OldSymbol:   weak.Symbol,
		NewSymbol:   replacement.Symbol(),
		RealizedPnL: pnl,
	})
	if err := e.position.TransitionState(models.StateOpen, models.ConditionLegRolled); err != nil {
		return Outcome{}, err
	}

	e.logger.WithFields(logrus.Fields{
		"side":     weakSide,
		"closed":   weak.Symbol,
		"opened":   replacement.Symbol(),
		"delta":    fmt.Sprintf("%.3f", replacement.Delta),
		"realized": fmt.Sprintf("%.4f", pnl),
	}).Info("Rebalanced delta by rolling weak leg")

	return Outcome{
		Kind:      OutcomeRebalanced,
		Side:      weakSide,
		OldSymbol: weak.Symbol,
		NewSymbol: replacement.Symbol(),
	}, nil
}

// TryConvert buys wings around a straddle, turning the position into an iron
// butterfly. It does nothing unless the call and put share a strike.
func (e *Engine) TryConvert(ctx context.Context, snap *models.QuoteSnapshot) (Outcome, error) {
	if err := e.requireState(models.StateOpen); err != nil {
		return Outcome{}, err
	}
	if !e.position.IsStraddle(e.config.WingStrikeEpsilon) {
		return stay(ReasonNotStraddle), nil
	}
	defer e.publish(snap)

	if err := e.position.TransitionState(models.StateConverting, models.ConditionStraddleDetected); err != nil {
		return Outcome{}, err
	}
	center := e.position.Call.Contract.Strike

	callWing, putWing := FindWings(snap, center)
	if callWing == nil || putWing == nil {
		e.logger.WithField("center", center).Warn("Could not find suitable wing strikes for iron butterfly")
		if err := e.position.TransitionState(models.StateOpen, models.ConditionWingsUnavailable); err != nil {
			return Outcome{}, err
		}
		return stay(ReasonWingsUnavailable), nil
	}

	wingCost := 0.0
	wings := make([]string, 0, 2)
	for _, q := range []*models.OptionQuote{callWing, putWing} {
		price := util.AskPreferredMark(q.Bid, q.Ask)
		if _, err := e.exec.Execute(ctx, orders.Fill{
			Side:      broker.SideBuy,
			Symbol:    q.Symbol(),
			Price:     price,
			Contracts: 1,
		}); err != nil {
			return Outcome{}, fmt.Errorf("buying %s wing: %w", q.Contract.Type, err)
		}
		wingCost += price
		wings = append(wings, q.Symbol())
		e.position.Wings = append(e.position.Wings, *models.NewLeg(*q, price, e.exec.Quantity()))
		e.position.AddAdjustment(models.Adjustment{
			Type:      models.AdjustmentWing,
			Side:      q.Contract.Type,
			NewSymbol: q.Symbol(),
		})
	}

	if err := e.position.TransitionState(models.StateConverted, models.ConditionWingsBought); err != nil {
		return Outcome{}, err
	}
	e.logger.WithFields(logrus.Fields{
		"call_wing":  callWing.Symbol(),
		"put_wing":   putWing.Symbol(),
		"wing_cost":  fmt.Sprintf("%.2f", wingCost),
		"net_credit": fmt.Sprintf("%.2f", e.position.ShortPremium()-wingCost),
	}).Info("Added wings, iron butterfly formed")

	return Outcome{Kind: OutcomeConverted, Wings: wings}, nil
}
