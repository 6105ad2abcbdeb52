package models

import (
	"fmt"
	"time"
)

// Leg is one short option held by the position. A Leg is never mutated once
// opened; rebalancing replaces it.
type Leg struct {
	OpenedAt   time.Time      `json:"opened_at"`
	Contract   OptionContract `json:"contract"`
	Symbol     string         `json:"symbol"`
	Delta      float64        `json:"delta"`       // signed delta at selection time
	EntryPrice float64        `json:"entry_price"` // bid-preferred mark when sold
	Quantity   float64        `json:"quantity"`    // order size sent to the exchange
	Contracts  int            `json:"contracts"`
}

// NewLeg opens a single-contract leg from a quote
func NewLeg(q OptionQuote, entryPrice, quantity float64) *Leg {
	return &Leg{
		OpenedAt:   time.Now().UTC(),
		Contract:   q.Contract,
		Symbol:     q.Symbol(),
		Delta:      q.Delta,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Contracts:  1,
	}
}

// AdjustmentType defines the type of adjustment made to a position.
type AdjustmentType string

const (
	// AdjustmentRoll indicates the weak leg was closed and replaced
	AdjustmentRoll AdjustmentType = "roll"
	// AdjustmentWing indicates a protective wing was bought
	AdjustmentWing AdjustmentType = "wing"
)

// Valid returns true if the AdjustmentType is one of the defined constants
func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentRoll, AdjustmentWing:
		return true
	default:
		return false
	}
}

// Adjustment represents a modification made to an existing position.
type Adjustment struct {
	Date        time.Time      `json:"date"`
	Type        AdjustmentType `json:"type"`
	Side        OptionType     `json:"side"`
	OldSymbol   string         `json:"old_symbol,omitempty"`
	NewSymbol   string         `json:"new_symbol"`
	RealizedPnL float64        `json:"realized_pnl"`
}

// Position is the single live strategy position: a short call and a short put,
// plus any wings bought on conversion.
type Position struct {
	StateMachine *StateMachine `json:"-"`
	Call         *Leg          `json:"call,omitempty"`
	Put          *Leg          `json:"put,omitempty"`
	ID           string        `json:"id"`
	State        PositionState `json:"state"`
	ExitReason   string        `json:"exit_reason,omitempty"`
	Wings        []Leg         `json:"wings,omitempty"`
	Adjustments  []Adjustment  `json:"adjustments"`
	EntryDate    time.Time     `json:"entry_date,omitempty"`
	ExitDate     time.Time     `json:"exit_date,omitempty"`
}

// NewPosition creates an empty position in the entering state
func NewPosition(id string) *Position {
	return &Position{
		ID:           id,
		StateMachine: NewStateMachine(),
		State:        StateEntering,
		Adjustments:  make([]Adjustment, 0),
	}
}

// Leg returns the leg held on a side, or nil
func (p *Position) Leg(side OptionType) *Leg {
	switch side {
	case OptionTypeCall:
		return p.Call
	case OptionTypePut:
		return p.Put
	default:
		return nil
	}
}

// SetLeg replaces the leg held on a side. A nil leg clears the side.
func (p *Position) SetLeg(side OptionType, leg *Leg) {
	switch side {
	case OptionTypeCall:
		p.Call = leg
	case OptionTypePut:
		p.Put = leg
	}
}

// Legs returns the present short legs, call first
func (p *Position) Legs() []*Leg {
	legs := make([]*Leg, 0, 2)
	if p.Call != nil {
		legs = append(legs, p.Call)
	}
	if p.Put != nil {
		legs = append(legs, p.Put)
	}
	return legs
}

// IsOpen reports whether both short legs are held
func (p *Position) IsOpen() bool {
	return p.Call != nil && p.Put != nil
}

// IsFlat reports whether no short legs are held
func (p *Position) IsFlat() bool {
	return p.Call == nil && p.Put == nil
}

// IsStraddle reports whether the call and put share a strike within epsilon
func (p *Position) IsStraddle(epsilon float64) bool {
	return p.IsOpen() && p.Call.Contract.SameStrike(p.Put.Contract, epsilon)
}

// TransitionState moves the position to a new state
func (p *Position) TransitionState(to PositionState, condition string) error {
	if err := p.ensureMachine().Transition(to, condition); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}

	p.State = to

	if to == StateOpen && p.EntryDate.IsZero() {
		p.EntryDate = time.Now().UTC()
	}
	if to == StateExited && p.ExitDate.IsZero() {
		p.ExitDate = time.Now().UTC()
	}
	if to == StateExiting {
		p.ExitReason = condition
	}
	return nil
}

// GetCurrentState returns the canonical state
func (p *Position) GetCurrentState() PositionState {
	return p.State
}

// ensureMachine lazily creates the state machine for zero-value positions
func (p *Position) ensureMachine() *StateMachine {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachine()
	}
	return p.StateMachine
}

// RebalanceCount returns how many legs have been rolled
func (p *Position) RebalanceCount() int {
	return p.ensureMachine().RebalanceCount()
}

// IsTerminal reports whether the position lifecycle has ended
func (p *Position) IsTerminal() bool {
	return p.ensureMachine().IsTerminal()
}

// AddAdjustment appends an adjustment record
func (p *Position) AddAdjustment(adj Adjustment) {
	if adj.Date.IsZero() {
		adj.Date = time.Now().UTC()
	}
	p.Adjustments = append(p.Adjustments, adj)
}

// ShortPremium returns the premium collected by the current short legs
func (p *Position) ShortPremium() float64 {
	total := 0.0
	for _, leg := range p.Legs() {
		total += leg.EntryPrice * float64(leg.Contracts)
	}
	return total
}

// GetStateDescription returns a human-readable state description
func (p *Position) GetStateDescription() string {
	return p.ensureMachine().GetStateDescription()
}

// ValidateState checks that the held legs agree with the lifecycle state
func (p *Position) ValidateState() error {
	switch p.State {
	case StateEntering:
		if !p.IsFlat() {
			return fmt.Errorf("position %s in state %s: must hold no legs", p.ID, p.State)
		}
	case StateOpen, StateConverting:
		if !p.IsOpen() {
			return fmt.Errorf("position %s in state %s: must hold both legs", p.ID, p.State)
		}
	case StateExited:
		if !p.IsFlat() {
			return fmt.Errorf("position %s in state %s: must hold no legs", p.ID, p.State)
		}
		if p.ExitReason == "" {
			return fmt.Errorf("position %s in state %s: ExitReason must be set", p.ID, p.State)
		}
	case StateConverted:
		if !p.IsOpen() || len(p.Wings) != 2 {
			return fmt.Errorf("position %s in state %s: must hold both legs and two wings (wings: %d)",
				p.ID, p.State, len(p.Wings))
		}
	}

	for _, leg := range p.Legs() {
		if leg.Contracts < 1 {
			return fmt.Errorf("position %s: leg %s has %d contracts", p.ID, leg.Symbol, leg.Contracts)
		}
		if leg.Quantity <= 0 {
			return fmt.Errorf("position %s: leg %s has non-positive quantity %.4f", p.ID, leg.Symbol, leg.Quantity)
		}
	}
	return nil
}

// Copy returns a deep copy suitable for handing to other goroutines
func (p *Position) Copy() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.StateMachine = p.StateMachine.Copy()
	if p.Call != nil {
		c := *p.Call
		cp.Call = &c
	}
	if p.Put != nil {
		c := *p.Put
		cp.Put = &c
	}
	cp.Wings = append([]Leg(nil), p.Wings...)
	cp.Adjustments = append([]Adjustment(nil), p.Adjustments...)
	return &cp
}
