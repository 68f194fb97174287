package logic

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type quadStep struct {
	line Line
	a, b bool
}

// cwCycle is one full clockwise quadrature cycle starting from 00.
// Each entry is the line that edged and the (A,B) levels after the edge.
var cwCycle = []quadStep{
	{LineA, true, false},
	{LineB, true, true},
	{LineA, false, true},
	{LineB, false, false},
}

// ccwCycle walks the same codes backwards: 00 -> 01 -> 11 -> 10 -> 00.
var ccwCycle = []quadStep{
	{LineB, false, true},
	{LineA, true, true},
	{LineB, true, false},
	{LineA, false, false},
}

// rotate returns edges for n full cycles in direction dir, starting at 00,
// spaced by gap from start.
func rotate(dir Direction, n int, start time.Time, gap time.Duration) []Edge {
	cycle := cwCycle
	if dir == CCW {
		cycle = ccwCycle
	}
	var edges []Edge
	for c := 0; c < n; c++ {
		for _, step := range cycle {
			edges = append(edges, Edge{
				Line: step.line,
				A:    step.a,
				B:    step.b,
				Time: start.Add(time.Duration(len(edges)) * gap),
			})
		}
	}
	return edges
}

func countTicks(d *Decoder, edges []Edge) (cw, ccw int) {
	for _, e := range edges {
		tick, ok := d.Process(e)
		if !ok {
			continue
		}
		if tick.Direction == CW {
			cw++
		} else {
			ccw++
		}
	}
	return cw, ccw
}

func TestRotateHelperProducesAdjacentCodes(t *testing.T) {
	for _, dir := range []Direction{CW, CCW} {
		prev := encode(false, false)
		for i, e := range rotate(dir, 2, t0, time.Millisecond) {
			next := encode(e.A, e.B)
			step := transitions[prev][next]
			if step != transition(dir) {
				t.Fatalf("%s edge %d: %02b -> %02b classified %d", dir, i, prev, next, step)
			}
			prev = next
		}
	}
}

func TestTransitionTableSymmetry(t *testing.T) {
	for from := 0; from < 4; from++ {
		for to := 0; to < 4; to++ {
			fwd := transitions[from][to]
			rev := transitions[to][from]
			switch fwd {
			case stay, invalid:
				if rev != fwd {
					t.Errorf("%02b<->%02b: %d vs %d", from, to, fwd, rev)
				}
			default:
				if rev != -fwd {
					t.Errorf("%02b<->%02b: %d should reverse to %d, got %d", from, to, fwd, -fwd, rev)
				}
			}
		}
	}
}

func TestFullRotationClockwise(t *testing.T) {
	for _, n := range []int{1, 3, 24} {
		d := NewDecoder(time.Millisecond, 4)
		d.Reset(false, false)

		cw, ccw := countTicks(d, rotate(CW, n, t0, 5*time.Millisecond))
		if cw != n || ccw != 0 {
			t.Errorf("n=%d: got cw=%d ccw=%d, want cw=%d ccw=0", n, cw, ccw, n)
		}
	}
}

func TestFullRotationCounterClockwise(t *testing.T) {
	d := NewDecoder(time.Millisecond, 4)
	d.Reset(false, false)

	cw, ccw := countTicks(d, rotate(CCW, 5, t0, 5*time.Millisecond))
	if cw != 0 || ccw != 5 {
		t.Errorf("got cw=%d ccw=%d, want cw=0 ccw=5", cw, ccw)
	}
}

func TestEveryTransitionTicksWithOneStepPerDetent(t *testing.T) {
	d := NewDecoder(0, 1)
	d.Reset(false, false)

	cw, ccw := countTicks(d, rotate(CW, 2, t0, time.Millisecond))
	if cw != 8 || ccw != 0 {
		t.Errorf("got cw=%d ccw=%d, want cw=8 ccw=0", cw, ccw)
	}
}

func TestUnprimedDecoderInfersPreviousCode(t *testing.T) {
	// No Reset: the first edge (A rising to 10) implies the previous code was 00.
	d := NewDecoder(0, 1)
	tick, ok := d.Process(Edge{Line: LineA, A: true, B: false, Time: t0})
	if !ok {
		t.Fatal("expected a tick from the first edge")
	}
	if tick.Direction != CW {
		t.Errorf("expected CW, got %s", tick.Direction)
	}
}

func TestInvalidTransitionsInjectedBetweenValid(t *testing.T) {
	d := NewDecoder(time.Millisecond, 1)
	d.Reset(false, false)

	valid := rotate(CW, 3, t0, 10*time.Millisecond)
	var edges []Edge
	for i, e := range valid {
		edges = append(edges, e)
		// Glitch: both lines flip at once relative to the current code.
		glitch := e
		glitch.A = !e.A
		glitch.B = !e.B
		glitch.Time = e.Time.Add(5 * time.Millisecond)
		if i%2 == 0 {
			glitch.Line = LineB
		}
		edges = append(edges, glitch)
	}

	cw, ccw := countTicks(d, edges)
	if cw != len(valid) || ccw != 0 {
		t.Errorf("got cw=%d ccw=%d, want cw=%d ccw=0", cw, ccw, len(valid))
	}
	if got := d.Counts().Invalid; got != len(valid) {
		t.Errorf("expected %d invalid transitions counted, got %d", len(valid), got)
	}
}

func TestDebounceDiscardsRapidEdges(t *testing.T) {
	d := NewDecoder(2*time.Millisecond, 1)
	d.Reset(false, false)

	// 00 -> 10 accepted.
	if _, ok := d.Process(Edge{Line: LineA, A: true, Time: t0}); !ok {
		t.Fatal("first edge should tick")
	}
	// Bounce back to 00 within 1ms: discarded before lookup.
	if _, ok := d.Process(Edge{Line: LineA, A: false, Time: t0.Add(time.Millisecond)}); ok {
		t.Error("bounced edge should not tick")
	}
	// 10 -> 11 after the interval: still CW because the bounce never reached the table.
	tick, ok := d.Process(Edge{Line: LineB, A: true, B: true, Time: t0.Add(3 * time.Millisecond)})
	if !ok || tick.Direction != CW {
		t.Errorf("expected CW tick after debounce interval, got ok=%v dir=%s", ok, tick.Direction)
	}

	c := d.Counts()
	if c.Bounced != 1 {
		t.Errorf("expected 1 bounced edge, got %d", c.Bounced)
	}
	if c.Accepted != 2 {
		t.Errorf("expected 2 accepted edges, got %d", c.Accepted)
	}
}

func TestDebounceAppliesAcrossLines(t *testing.T) {
	d := NewDecoder(2*time.Millisecond, 1)
	d.Reset(false, false)

	d.Process(Edge{Line: LineA, A: true, Time: t0})
	if _, ok := d.Process(Edge{Line: LineB, A: true, B: true, Time: t0.Add(500 * time.Microsecond)}); ok {
		t.Error("edge on B within the interval of an A edge should be discarded")
	}
}

func TestSameCodeEdgeIsIgnored(t *testing.T) {
	d := NewDecoder(0, 1)
	d.Reset(true, false)

	if _, ok := d.Process(Edge{Line: LineA, A: true, B: false, Time: t0}); ok {
		t.Error("edge that leaves the code unchanged should not tick")
	}
	if c := d.Counts(); c.Invalid != 0 || c.Accepted != 0 {
		t.Errorf("unchanged code should not be counted, got %+v", c)
	}
}

func TestPartialDetentReversalEmitsNothing(t *testing.T) {
	d := NewDecoder(0, 4)
	d.Reset(false, false)

	edges := []Edge{
		{Line: LineA, A: true, B: false, Time: t0},
		{Line: LineB, A: true, B: true, Time: t0.Add(time.Millisecond)},
		{Line: LineB, A: true, B: false, Time: t0.Add(2 * time.Millisecond)},
		{Line: LineA, A: false, B: false, Time: t0.Add(3 * time.Millisecond)},
	}
	cw, ccw := countTicks(d, edges)
	if cw != 0 || ccw != 0 {
		t.Errorf("half-turn and back should emit nothing, got cw=%d ccw=%d", cw, ccw)
	}
}

func TestButtonEdgesIgnoredByDecoder(t *testing.T) {
	d := NewDecoder(0, 1)
	d.Reset(false, false)
	if _, ok := d.Process(Edge{Line: LineButton, Pressed: true, Time: t0}); ok {
		t.Error("button edge should not tick")
	}
}
