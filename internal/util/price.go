// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundPnL rounds to the 4 decimal places used in trade records.
func RoundPnL(x float64) float64 {
	return RoundToTick(x, 1e-4)
}

// BidPreferredMark returns bid, else ask, else 0.
// Used as the conservative fill for a sell and to mark open shorts.
func BidPreferredMark(bid, ask float64) float64 {
	if bid != 0 {
		return bid
	}
	if ask != 0 {
		return ask
	}
	return 0
}

// AskPreferredMark returns ask, else bid, else 0.
// Used when buying back at the offer.
func AskPreferredMark(bid, ask float64) float64 {
	if ask != 0 {
		return ask
	}
	if bid != 0 {
		return bid
	}
	return 0
}
