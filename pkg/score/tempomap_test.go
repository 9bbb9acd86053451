package score

import (
	"math"
	"testing"
)

const tickEps = 1e-6

func TestTempoMapConstant(t *testing.T) {
	tm := NewTempoMap(480, 120, nil)

	tests := []struct {
		beat  float64
		ticks float64
	}{
		{0, 0},
		{1, 480},
		{4, 1920},
		{0.5, 240},
	}
	for _, tt := range tests {
		if got := tm.BeatsToTicks(tt.beat); math.Abs(got-tt.ticks) > tickEps {
			t.Errorf("BeatsToTicks(%g) = %g, want %g", tt.beat, got, tt.ticks)
		}
		if got := tm.TicksToBeats(tt.ticks); math.Abs(got-tt.beat) > tickEps {
			t.Errorf("TicksToBeats(%g) = %g, want %g", tt.ticks, got, tt.beat)
		}
	}
	if got := tm.BPMAt(2); got != 120 {
		t.Errorf("BPMAt(2) = %g, want 120", got)
	}
}

// A slower passage stretches the tick timeline: ticks stay anchored to
// the top-level tempo, so a beat at 100 bpm under a 120 bpm anchor
// spans 480*120/100 ticks.
func TestTempoMapInstantChange(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{{Start: 4, BPM: 100}})

	if got := tm.BeatsToTicks(4); math.Abs(got-1920) > tickEps {
		t.Errorf("BeatsToTicks(4) = %g, want 1920", got)
	}
	want8 := 1920 + 4*480*(120.0/100.0)
	if got := tm.BeatsToTicks(8); math.Abs(got-want8) > tickEps {
		t.Errorf("BeatsToTicks(8) = %g, want %g", got, want8)
	}

	if got := tm.BPMAt(3.9); got != 120 {
		t.Errorf("BPMAt(3.9) = %g, want 120", got)
	}
	if got := tm.BPMAt(4); got != 100 {
		t.Errorf("BPMAt(4) = %g, want 100", got)
	}

	// Real time follows the anchored tick scale.
	if got := tm.BeatsToSeconds(4); math.Abs(got-2.0) > tickEps {
		t.Errorf("BeatsToSeconds(4) = %g, want 2", got)
	}
	if got := tm.BeatsToSeconds(8); math.Abs(got-4.4) > tickEps {
		t.Errorf("BeatsToSeconds(8) = %g, want 4.4", got)
	}
}

func TestTempoMapSameBeatTie(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{
		{Start: 4, BPM: 100},
		{Start: 4, BPM: 90},
	})
	if got := tm.BPMAt(4); got != 90 {
		t.Errorf("BPMAt(4) = %g, want the later event's 90", got)
	}
	want := 1920 + 4*480*(120.0/90.0)
	if got := tm.BeatsToTicks(8); math.Abs(got-want) > tickEps {
		t.Errorf("BeatsToTicks(8) = %g, want %g", got, want)
	}
}

func TestTempoMapUnsortedEvents(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{
		{Start: 8, BPM: 60},
		{Start: 4, BPM: 100},
	})
	if got := tm.BPMAt(5); got != 100 {
		t.Errorf("BPMAt(5) = %g, want 100", got)
	}
	if got := tm.BPMAt(9); got != 60 {
		t.Errorf("BPMAt(9) = %g, want 60", got)
	}
}

func TestTempoMapRamp(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{
		{Start: 0, Ramp: &TempoRamp{FromBPM: 120, ToBPM: 60, Beats: 4}},
	})

	if got := tm.BPMAt(0); got != 120 {
		t.Errorf("BPMAt(0) = %g, want 120", got)
	}
	if got := tm.BPMAt(2); math.Abs(got-90) > tickEps {
		t.Errorf("BPMAt(2) = %g, want 90", got)
	}
	if got := tm.BPMAt(4); got != 60 {
		t.Errorf("BPMAt(4) = %g, want 60", got)
	}
	if got := tm.BPMAt(10); got != 60 {
		t.Errorf("BPMAt(10) = %g, want the ramp to hold its target", got)
	}

	// Closed form of the log integral over the full ramp.
	k := (60.0 - 120.0) / 4.0
	wantFull := 480 * 120 * (math.Log(60.0/120.0) / k)
	if got := tm.BeatsToTicks(4); math.Abs(got-wantFull) > 1e-6 {
		t.Errorf("BeatsToTicks(4) = %g, want %g", got, wantFull)
	}

	// Slowing down stretches ticks past the constant-tempo count.
	if got := tm.BeatsToTicks(4); got <= 4*480 {
		t.Errorf("BeatsToTicks(4) = %g, want more than %d while slowing down", got, 4*480)
	}
}

func TestTempoMapRoundTrip(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{
		{Start: 2, Ramp: &TempoRamp{FromBPM: 120, ToBPM: 80, Beats: 3}},
		{Start: 8, BPM: 140},
	})
	for _, beat := range []float64{0, 0.5, 1, 2, 2.7, 3.5, 5, 6.1, 8, 9.9, 16} {
		ticks := tm.BeatsToTicks(beat)
		back := tm.TicksToBeats(ticks)
		if math.Abs(back-beat) > 1e-9 {
			t.Errorf("TicksToBeats(BeatsToTicks(%g)) = %g", beat, back)
		}
	}
}

func TestTempoMapMonotonic(t *testing.T) {
	tm := NewTempoMap(480, 120, []TempoEvent{
		{Start: 2, Ramp: &TempoRamp{FromBPM: 120, ToBPM: 200, Beats: 4}},
		{Start: 10, BPM: 40},
	})
	prev := -1.0
	for beat := 0.0; beat <= 20; beat += 0.25 {
		ticks := tm.BeatsToTicks(beat)
		if ticks <= prev {
			t.Fatalf("BeatsToTicks not strictly increasing at beat %g: %g <= %g", beat, ticks, prev)
		}
		prev = ticks
	}
}

func TestCompositionTempoMapGathersAllTracks(t *testing.T) {
	c, err := NewComposition("Test", 120, TimeSignature{4, 4}, 480, "", []Track{
		{Events: []Event{validNote(), TempoEvent{Start: 4, BPM: 100}}},
		{Events: []Event{TempoEvent{Start: 8, BPM: 80}}},
	})
	if err != nil {
		t.Fatalf("NewComposition() error: %v", err)
	}
	tm := c.TempoMap()
	if got := tm.BPMAt(5); got != 100 {
		t.Errorf("BPMAt(5) = %g, want 100", got)
	}
	if got := tm.BPMAt(9); got != 80 {
		t.Errorf("BPMAt(9) = %g, want the other track's 80", got)
	}
}
