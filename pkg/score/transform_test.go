package score

import (
	"errors"
	"testing"
)

func TestTranspose(t *testing.T) {
	c := pedalComposition(
		NoteEvent{Start: 0, Duration: 1, Velocity: 100, Notes: []Note{{Pitch: 60, Hand: HandRight}, {Pitch: 64}}},
		PedalEvent{Start: 0, Duration: 1, Value: 127},
	)

	up, err := Transpose(c, 2)
	if err != nil {
		t.Fatalf("Transpose() error: %v", err)
	}
	note := up.Tracks[0].Events[0].(NoteEvent)
	if note.Notes[0].Pitch != 62 || note.Notes[1].Pitch != 66 {
		t.Errorf("pitches after +2 = %d, %d, want 62, 66", note.Notes[0].Pitch, note.Notes[1].Pitch)
	}
	if note.Notes[0].Hand != HandRight {
		t.Errorf("hand tag lost in transposition")
	}

	// The original is untouched and other events pass through.
	orig := c.Tracks[0].Events[0].(NoteEvent)
	if orig.Notes[0].Pitch != 60 {
		t.Errorf("Transpose mutated its input: pitch = %d", orig.Notes[0].Pitch)
	}
	if _, ok := up.Tracks[0].Events[1].(PedalEvent); !ok {
		t.Errorf("pedal event changed type: %#v", up.Tracks[0].Events[1])
	}

	down, err := Transpose(up, -2)
	if err != nil {
		t.Fatalf("Transpose() error: %v", err)
	}
	if got := down.Tracks[0].Events[0].(NoteEvent).Notes[0].Pitch; got != 60 {
		t.Errorf("pitch after +2 then -2 = %d, want 60", got)
	}
}

func TestTransposeOutOfRange(t *testing.T) {
	tests := []struct {
		name      string
		pitch     uint8
		semitones int
	}{
		{"above top", 127, 2},
		{"below bottom", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := pedalComposition(NoteEvent{Start: 0, Duration: 1, Velocity: 100, Notes: []Note{{Pitch: tt.pitch}}})
			_, err := Transpose(c, tt.semitones)
			if err == nil {
				t.Fatal("Transpose() accepted an out-of-range shift")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if verr.Track != 0 || verr.Event != 0 {
				t.Errorf("error at track %d event %d, want track 0 event 0", verr.Track, verr.Event)
			}
		})
	}
}
