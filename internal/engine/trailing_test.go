package engine

import (
	"testing"

	"dcatrader/internal/config"

	"github.com/stretchr/testify/assert"
)

func trailSettings() config.Settings {
	s := config.DefaultSettings()
	s.PMStartPctNoDCA = 5
	s.PMStartPctWithDCA = 2.5
	s.TrailingGapPct = 0.5
	return s
}

func TestTrailExitsOnDownwardCrossing(t *testing.T) {
	s := trailSettings()
	tr := NewTrailState(s.TrailSignature())

	assert.False(t, tr.Step(100, 0, 104, s))
	assert.False(t, tr.Active)
	assert.InDelta(t, 105, tr.Line, 1e-9)

	assert.False(t, tr.Step(100, 0, 105, s))
	assert.True(t, tr.Active)
	assert.InDelta(t, 105, tr.Peak, 1e-9)
	assert.InDelta(t, 105, tr.Line, 1e-9)

	assert.False(t, tr.Step(100, 0, 110, s))
	assert.InDelta(t, 110, tr.Peak, 1e-9)
	assert.InDelta(t, 109.45, tr.Line, 1e-9)

	assert.True(t, tr.Step(100, 0, 109.40, s))
}

func TestTrailNoExitWithoutPriorAbove(t *testing.T) {
	s := trailSettings()
	tr := NewTrailState(s.TrailSignature())

	for _, p := range []float64{90, 95, 104.9, 80} {
		assert.False(t, tr.Step(100, 0, p, s))
	}
	assert.False(t, tr.Active)
}

func TestTrailLineNeverDropsWhileActive(t *testing.T) {
	s := trailSettings()
	tr := NewTrailState(s.TrailSignature())

	prev := 0.0
	for _, p := range []float64{106, 108, 107, 112, 111.5, 115, 114.9} {
		tr.Step(100, 0, p, s)
		assert.GreaterOrEqual(t, tr.Line, prev)
		assert.GreaterOrEqual(t, tr.Line, BaseLine(100, 0, s))
		prev = tr.Line
	}
	assert.InDelta(t, 115*0.995, tr.Line, 1e-9)
}

func TestTrailBaseLineDependsOnStage(t *testing.T) {
	s := trailSettings()
	assert.InDelta(t, 105, BaseLine(100, 0, s), 1e-9)
	assert.InDelta(t, 102.5, BaseLine(100, 1, s), 1e-9)
	assert.InDelta(t, 102.5, BaseLine(100, 3, s), 1e-9)
}

func TestTrailStateRebuiltOnSignatureChange(t *testing.T) {
	s := trailSettings()
	h := newHarness(t, s)
	pos := h.eng.position("BTC")

	tr := h.eng.trailFor(pos)
	tr.Active = true
	assert.Same(t, tr, h.eng.trailFor(pos))

	s.TrailingGapPct = 1
	h.settings.set(s)
	h.eng.reloadSettings()

	assert.Nil(t, pos.Trail)
	fresh := h.eng.trailFor(pos)
	assert.False(t, fresh.Active)
	assert.Equal(t, s.TrailSignature(), fresh.Sig)
}
