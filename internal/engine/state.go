package engine

// Position is what the engine knows about one held coin. Qty and CostBasis come from the
// venue; Stage and Trail are the bot's own progress through the current trade.
type Position struct {
	Symbol    string
	Qty       float64
	CostBasis float64
	Stage     int
	Trail     *TrailState

	// Unattributed marks a holding whose venue history has no buy of ours, such as a transfer.
	Unattributed bool
}

// ResetTrade forgets the trade progress after a full exit or a fresh entry.
func (p *Position) ResetTrade() {
	p.Stage = 0
	p.Trail = nil
}

func (p *Position) DropTrail() {
	p.Trail = nil
}

func (e *Engine) position(sym string) *Position {
	pos, ok := e.positions[sym]
	if !ok {
		pos = &Position{Symbol: sym}
		e.positions[sym] = pos
	}
	return pos
}

func (e *Engine) trailFor(pos *Position) *TrailState {
	if pos.Trail == nil || pos.Trail.Sig != e.trailSig {
		pos.Trail = NewTrailState(e.trailSig)
	}
	return pos.Trail
}

func (e *Engine) dropAllTrails() {
	for _, pos := range e.positions {
		pos.DropTrail()
	}
}
