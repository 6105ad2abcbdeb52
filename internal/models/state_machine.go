// Package models provides data structures and state management for the
// delta-neutral option position.
package models

import (
	"fmt"
	"time"
)

// PositionState represents the current lifecycle state of the position
type PositionState string

const (
	StateEntering    PositionState = "entering"    // Waiting for the entry trigger
	StateOpen        PositionState = "open"        // Short call and short put held
	StateRebalancing PositionState = "rebalancing" // Rolling the weak leg
	StateExiting     PositionState = "exiting"     // Buying back both legs
	StateConverting  PositionState = "converting"  // Buying wings around a straddle
	StateExited      PositionState = "exited"      // Flat, terminal
	StateConverted   PositionState = "converted"   // Iron butterfly, terminal
)

// Transition conditions
const (
	ConditionEntryTriggered   = "entry_triggered"
	ConditionDeltaOutOfBand   = "delta_out_of_band"
	ConditionLegRolled        = "leg_rolled"
	ConditionNoReplacement    = "no_replacement"
	ConditionProfitTarget     = "profit_target"
	ConditionStopLoss         = "stop_loss"
	ConditionLegsClosed       = "legs_closed"
	ConditionStraddleDetected = "straddle_detected"
	ConditionWingsBought      = "wings_bought"
	ConditionWingsUnavailable = "wings_unavailable"
)

// StateTransition defines valid state transitions
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed move of the position lifecycle.
var ValidTransitions = []StateTransition{
	{StateEntering, StateOpen, ConditionEntryTriggered, "Sold call and put legs"},

	{StateOpen, StateRebalancing, ConditionDeltaOutOfBand, "Net delta outside band"},
	{StateRebalancing, StateOpen, ConditionLegRolled, "Weak leg replaced"},
	{StateRebalancing, StateOpen, ConditionNoReplacement, "No replacement candidate, leg kept"},

	{StateOpen, StateExiting, ConditionProfitTarget, "Profit target reached"},
	{StateOpen, StateExiting, ConditionStopLoss, "Stop loss reached"},
	{StateExiting, StateExited, ConditionLegsClosed, "All legs bought back"},

	{StateOpen, StateConverting, ConditionStraddleDetected, "Call and put share a strike"},
	{StateConverting, StateConverted, ConditionWingsBought, "Wings bought, iron butterfly formed"},
	{StateConverting, StateOpen, ConditionWingsUnavailable, "Wing strikes missing, conversion deferred"},
}

// StateMachine manages position state transitions
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[PositionState]int
	conditionCount  map[string]int
	currentState    PositionState
	previousState   PositionState
}

// NewStateMachine creates a new state machine in the entering state
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateEntering,
		previousState:   StateEntering,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[PositionState]int),
		conditionCount:  make(map[string]int),
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// GetTransitionTime returns when the last transition happened
func (sm *StateMachine) GetTransitionTime() time.Time {
	return sm.transitionTime
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	if sm.IsTerminal() {
		return fmt.Errorf("state %s is terminal, cannot move to %s", sm.currentState, to)
	}
	for _, transition := range ValidTransitions {
		if transition.From == sm.currentState && transition.To == to && transition.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	sm.conditionCount[condition]++
	return nil
}

// GetTransitionCount returns how many times we've entered a state
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// RebalanceCount returns how many legs were actually rolled.
// A rebalance that found no replacement is not counted.
func (sm *StateMachine) RebalanceCount() int {
	return sm.conditionCount[ConditionLegRolled]
}

// IsTerminal reports whether no further transitions are possible
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateExited || sm.currentState == StateConverted
}

// IsManaged reports whether the position is held and under management
func (sm *StateMachine) IsManaged() bool {
	switch sm.currentState {
	case StateOpen, StateRebalancing, StateExiting, StateConverting:
		return true
	default:
		return false
	}
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateEntering:
		return "Watching ATM implied volatility for an entry"
	case StateOpen:
		return "Short call and short put open, monitoring delta and P&L"
	case StateRebalancing:
		return "Net delta out of band, rolling the weaker leg"
	case StateExiting:
		return "Exit threshold hit, buying back both legs"
	case StateConverting:
		return "Straddle detected, buying wings"
	case StateExited:
		return "Position closed"
	case StateConverted:
		return "Iron butterfly formed, no further management"
	default:
		return "Unknown state"
	}
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}

	newSM := &StateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
	}

	newSM.transitionCount = make(map[PositionState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		newSM.transitionCount[k] = v
	}
	newSM.conditionCount = make(map[string]int, len(sm.conditionCount))
	for k, v := range sm.conditionCount {
		newSM.conditionCount[k] = v
	}

	return newSM
}
