package gpio

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func drain(f *FakeWatcher) []Event {
	var out []Event
	for {
		select {
		case ev := <-f.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFakeWatcherRotateClockwise(t *testing.T) {
	f := NewFakeWatcher(16)
	last := f.Rotate(true, 1, t0, time.Millisecond)

	evs := drain(f)
	if len(evs) != 4 {
		t.Fatalf("expected 4 edges per detent, got %d", len(evs))
	}
	want := []struct {
		line   Line
		rising bool
		a, b   bool
	}{
		{LineA, false, false, true},
		{LineB, false, false, false},
		{LineA, true, true, false},
		{LineB, true, true, true},
	}
	for i, w := range want {
		ev := evs[i]
		if ev.Line != w.line || ev.Rising != w.rising || ev.A != w.a || ev.B != w.b {
			t.Errorf("edge %d: got %+v, want %+v", i, ev, w)
		}
		if !ev.Time.Equal(t0.Add(time.Duration(i) * time.Millisecond)) {
			t.Errorf("edge %d: time %v", i, ev.Time)
		}
	}
	if !last.Equal(t0.Add(3 * time.Millisecond)) {
		t.Errorf("last edge time: got %v", last)
	}
}

func TestFakeWatcherRotateCounterClockwise(t *testing.T) {
	f := NewFakeWatcher(16)
	f.Rotate(false, 1, t0, time.Millisecond)

	evs := drain(f)
	if len(evs) != 4 {
		t.Fatalf("expected 4 edges, got %d", len(evs))
	}
	if evs[0].Line != LineB || evs[0].B {
		t.Errorf("CCW should start with B falling, got %+v", evs[0])
	}
	end := evs[3].Levels
	if !end.A || !end.B {
		t.Errorf("should end at rest, got %+v", end)
	}
}

func TestFakeWatcherEdgesChangeOneLine(t *testing.T) {
	f := NewFakeWatcher(64)
	f.Rotate(true, 2, t0, time.Millisecond)
	f.Rotate(false, 2, t0.Add(time.Second), time.Millisecond)

	prev := Levels{A: true, B: true}
	for i, ev := range drain(f) {
		changed := 0
		if ev.A != prev.A {
			changed++
		}
		if ev.B != prev.B {
			changed++
		}
		if changed != 1 {
			t.Errorf("edge %d: %d lines changed", i, changed)
		}
		prev = ev.Levels
	}
}

func TestFakeWatcherPress(t *testing.T) {
	f := NewFakeWatcher(4)
	f.Press(t0, 700*time.Millisecond)

	evs := drain(f)
	if len(evs) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(evs))
	}
	if !evs[0].Pressed || evs[1].Pressed {
		t.Errorf("expected press then release, got %+v", evs)
	}
	if evs[1].Time.Sub(evs[0].Time) != 700*time.Millisecond {
		t.Errorf("hold: got %v", evs[1].Time.Sub(evs[0].Time))
	}
	if evs[0].Line != LineButton {
		t.Errorf("line: got %s", evs[0].Line)
	}
}

func TestFakeWatcherRead(t *testing.T) {
	f := NewFakeWatcher(1)

	lv, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lv.A || !lv.B || lv.Pressed {
		t.Errorf("rest levels: got %+v", lv)
	}

	f.SetLevels(Levels{Pressed: true})
	if lv, _ := f.Read(); lv != (Levels{Pressed: true}) {
		t.Errorf("got %+v", lv)
	}

	f.SetReadError(errors.New("simulated error"))
	if _, err := f.Read(); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeWatcherClose(t *testing.T) {
	f := NewFakeWatcher(1)
	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestPressedActiveLevel(t *testing.T) {
	tests := []struct {
		raw, activeLow, want bool
	}{
		{false, true, true},
		{true, true, false},
		{true, false, true},
		{false, false, false},
	}
	for _, tt := range tests {
		if got := pressed(tt.raw, tt.activeLow); got != tt.want {
			t.Errorf("pressed(%v, %v) = %v, want %v", tt.raw, tt.activeLow, got, tt.want)
		}
	}
}

func TestLineString(t *testing.T) {
	if LineA.String() != "A" || LineButton.String() != "BUTTON" || Line(9).String() != "Line(9)" {
		t.Error("unexpected line names")
	}
}
