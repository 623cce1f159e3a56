package engine

import (
	"dcatrader/internal/config"
	"math"
)

// TrailState is the profit-protection exit for one open position.
type TrailState struct {
	Active   bool
	Line     float64
	Peak     float64
	WasAbove bool
	Sig      config.TrailSignature
}

func NewTrailState(sig config.TrailSignature) *TrailState {
	return &TrailState{Sig: sig}
}

// BaseLine is the lowest price the trail may ever sit at for this cost basis and stage.
func BaseLine(costBasis float64, stage int, s config.Settings) float64 {
	return PriceAtPct(costBasis, s.PMStartPct(stage))
}

// Step advances the trail by one observation of the sell price and reports whether the
// position should be closed. Exit needs a downward crossing: the previous tick at or above
// the line and this one below it.
func (t *TrailState) Step(costBasis float64, stage int, price float64, s config.Settings) bool {
	base := BaseLine(costBasis, stage, s)

	if !t.Active {
		t.Line = base
	} else if t.Line < base {
		t.Line = base
	}

	aboveNow := price >= t.Line

	if !t.Active && aboveNow {
		t.Active = true
		t.Peak = price
	}

	if t.Active {
		if price > t.Peak {
			t.Peak = price
		}
		next := math.Max(t.Peak*(1-s.TrailingGapPct/100), base)
		if next > t.Line {
			t.Line = next
		}
	}

	exit := t.WasAbove && price < t.Line
	t.WasAbove = aboveNow
	return exit
}
