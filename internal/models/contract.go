package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// StrikeMatchEpsilon is the tolerance used when comparing strikes
const StrikeMatchEpsilon = 1e-6

// ErrInvalidSymbol is returned when an exchange symbol cannot be parsed
var ErrInvalidSymbol = errors.New("invalid option symbol")

// OptionContract is an option symbol parsed once at quote ingestion.
// Exchange format: BASE-DDMMMYY-STRIKE-C|P[-SETTLE], e.g. BTC-21APR25-90000-C-USDT.
type OptionContract struct {
	Symbol     string     `json:"symbol"`
	Underlying string     `json:"underlying"`
	Expiry     string     `json:"expiry"`
	Settle     string     `json:"settle,omitempty"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
}

// ParseContract parses an exchange option symbol.
func ParseContract(symbol string) (OptionContract, error) {
	parts := strings.Split(symbol, "-")
	if len(parts) < 4 || len(parts) > 5 {
		return OptionContract{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	c := OptionContract{
		Symbol:     symbol,
		Underlying: parts[0],
		Expiry:     parts[1],
	}
	if len(parts) == 5 {
		c.Settle = parts[4]
	}

	switch parts[3] {
	case "C":
		c.Type = OptionTypeCall
	case "P":
		c.Type = OptionTypePut
	default:
		return OptionContract{}, fmt.Errorf("%w: unknown option type %q in %q", ErrInvalidSymbol, parts[3], symbol)
	}

	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || strike <= 0 {
		return OptionContract{}, fmt.Errorf("%w: bad strike %q in %q", ErrInvalidSymbol, parts[2], symbol)
	}
	c.Strike = strike

	if c.Underlying == "" || c.Expiry == "" {
		return OptionContract{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return c, nil
}

// IsCall reports whether the contract is a call
func (c OptionContract) IsCall() bool { return c.Type == OptionTypeCall }

// IsPut reports whether the contract is a put
func (c OptionContract) IsPut() bool { return c.Type == OptionTypePut }

// SameStrike reports whether two contracts share a strike within epsilon.
// A non-positive epsilon means StrikeMatchEpsilon.
func (c OptionContract) SameStrike(other OptionContract, epsilon float64) bool {
	if epsilon <= 0 {
		epsilon = StrikeMatchEpsilon
	}
	d := c.Strike - other.Strike
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}
