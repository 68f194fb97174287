package logic

import "time"

// transition classifies a move between two 2-bit (A,B) codes.
type transition int8

const (
	stay    transition = 0
	stepCW  transition = 1
	stepCCW transition = -1
	invalid transition = 2
)

// transitions maps (old code, new code) to a step. Codes are A<<1|B.
// Clockwise Gray sequence: 00 -> 10 -> 11 -> 01 -> 00.
var transitions = [4][4]transition{
	//           00       01       10       11
	/* 00 */ {stay, stepCCW, stepCW, invalid},
	/* 01 */ {stepCW, stay, invalid, stepCCW},
	/* 10 */ {stepCCW, invalid, stay, stepCW},
	/* 11 */ {invalid, stepCW, stepCCW, stay},
}

func encode(a, b bool) uint8 {
	var c uint8
	if a {
		c |= 2
	}
	if b {
		c |= 1
	}
	return c
}

// Decoder turns A/B edges into rotation ticks.
//
// Edges arriving within the debounce interval of the previously accepted
// edge are discarded before the transition lookup. Non-adjacent transitions
// are discarded and the last stable code is kept, so a single glitched
// sample never produces a tick.
type Decoder struct {
	debounce       time.Duration
	stepsPerDetent int

	code         uint8
	primed       bool
	lastAccepted time.Time
	accum        int
	counts       DecoderCounts
}

// NewDecoder creates a decoder. stepsPerDetent is the number of valid
// transitions per emitted tick; values below 1 are treated as 1.
func NewDecoder(debounce time.Duration, stepsPerDetent int) *Decoder {
	if stepsPerDetent < 1 {
		stepsPerDetent = 1
	}
	return &Decoder{
		debounce:       debounce,
		stepsPerDetent: stepsPerDetent,
	}
}

// Reset seeds the stable code from a synchronous read of both lines.
func (d *Decoder) Reset(a, b bool) {
	d.code = encode(a, b)
	d.primed = true
	d.accum = 0
}

// Process consumes one edge and returns a tick if a full detent completed.
// Button edges are ignored.
func (d *Decoder) Process(e Edge) (Tick, bool) {
	if e.Line != LineA && e.Line != LineB {
		return Tick{}, false
	}
	next := encode(e.A, e.B)

	if !d.primed {
		// The edged line must have held the opposite level before this edge.
		if e.Line == LineA {
			d.code = next ^ 2
		} else {
			d.code = next ^ 1
		}
		d.primed = true
	}

	if !d.lastAccepted.IsZero() && e.Time.Sub(d.lastAccepted) < d.debounce {
		d.counts.Bounced++
		return Tick{}, false
	}
	d.lastAccepted = e.Time

	step := transitions[d.code][next]
	switch step {
	case stay:
		return Tick{}, false
	case invalid:
		d.counts.Invalid++
		return Tick{}, false
	}

	d.counts.Accepted++
	d.code = next
	d.accum += int(step)

	var dir Direction
	switch {
	case d.accum >= d.stepsPerDetent:
		dir = CW
	case d.accum <= -d.stepsPerDetent:
		dir = CCW
	default:
		return Tick{}, false
	}
	d.accum = 0
	d.counts.Ticks++
	return Tick{Direction: dir, Time: e.Time}, true
}

// Counts returns a copy of the decoder counters.
func (d *Decoder) Counts() DecoderCounts {
	return d.counts
}
