// Package strategy implements the delta-neutral short call/put strategy:
// leg selection, P&L accounting and the position lifecycle.
package strategy

import (
	"math"

	"github.com/eddiefleurent/delta_neutral/internal/models"
)

// atmDelta is the call delta treated as at-the-money
const atmDelta = 0.5

// SelectLeg returns the quote on side whose delta is nearest the target
// magnitude: calls must have positive delta and score |delta - target|, puts
// negative delta and score |delta + target|. The first quote seen wins a tie.
func SelectLeg(snap *models.QuoteSnapshot, side models.OptionType, target float64) (models.OptionQuote, bool) {
	var (
		best  models.OptionQuote
		score = math.Inf(1)
		found bool
	)
	snap.Each(func(q models.OptionQuote) bool {
		var s float64
		switch {
		case side == models.OptionTypeCall && q.Contract.IsCall() && q.Delta > 0:
			s = math.Abs(q.Delta - target)
		case side == models.OptionTypePut && q.Contract.IsPut() && q.Delta < 0:
			s = math.Abs(q.Delta + target)
		default:
			return true
		}
		if s < score {
			best, score, found = q, s, true
		}
		return true
	})
	return best, found
}

// SelectEntryLegs picks the call and put for a new position. Either result is
// nil when the snapshot has no candidate on that side.
func SelectEntryLegs(snap *models.QuoteSnapshot, target float64) (call, put *models.OptionQuote) {
	if q, ok := SelectLeg(snap, models.OptionTypeCall, target); ok {
		call = &q
	}
	if q, ok := SelectLeg(snap, models.OptionTypePut, target); ok {
		put = &q
	}
	return call, put
}

// FindATM returns the call whose delta is nearest 0.5
func FindATM(snap *models.QuoteSnapshot) (models.OptionQuote, bool) {
	var (
		best  models.OptionQuote
		score = math.Inf(1)
		found bool
	)
	snap.Each(func(q models.OptionQuote) bool {
		if !q.Contract.IsCall() {
			return true
		}
		if s := math.Abs(q.Delta - atmDelta); s < score {
			best, score, found = q, s, true
		}
		return true
	})
	return best, found
}

// FindWings returns the call with the lowest strike strictly above center and
// the put with the highest strike strictly below it.
func FindWings(snap *models.QuoteSnapshot, center float64) (call, put *models.OptionQuote) {
	snap.Each(func(q models.OptionQuote) bool {
		strike := q.Contract.Strike
		switch {
		case q.Contract.IsCall() && strike > center:
			if call == nil || strike < call.Contract.Strike {
				call = &q
			}
		case q.Contract.IsPut() && strike < center:
			if put == nil || strike > put.Contract.Strike {
				put = &q
			}
		}
		return true
	})
	return call, put
}
