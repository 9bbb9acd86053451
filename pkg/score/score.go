// Package score defines the beat-time composition model: compositions,
// tracks, and the event variants that make up a piece, together with the
// validation that runs once at construction.
package score

import (
	"fmt"
	"sort"
)

// Model-wide limits. Out-of-range values are rejected at construction,
// never clamped: clamping would hide upstream bugs in untrusted input.
const (
	MaxChannel    = 15
	MaxProgram    = 127
	MaxPitch      = 127
	MaxVelocity   = 127
	MaxPedalValue = 127

	MinTempoBPM = 10.0
	MaxTempoBPM = 600.0

	DefaultBPM = 120.0
	DefaultPPQ = 480
)

// Pedal value conventions for CC64.
const (
	PedalPress   = 127
	PedalRelease = 0
)

// TimeSignature is the displayed meter. The denominator must be a power
// of two so it can be written as an SMF time-signature meta message.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// Composition is an immutable snapshot of a piece. Build one with
// NewComposition (or via ParseDocument / the importer); transforms return
// a new value rather than mutating.
type Composition struct {
	Title         string
	BPM           float64
	TimeSignature TimeSignature
	PPQ           int
	KeySignature  string // display-only, may be empty
	Tracks        []Track

	// MusicalIntent is an opaque side-document echoed through unmodified.
	MusicalIntent []byte
}

// Track is one musical voice: an ordered event sequence on a MIDI
// channel with a program. Event order is encounter order; the renderer
// re-sorts by start time.
type Track struct {
	Name    string
	Channel uint8
	Program uint8
	Events  []Event
}

// Hand tags which hand a note belongs to. Model-only; MIDI has no such
// concept.
type Hand string

const (
	HandNone  Hand = ""
	HandLeft  Hand = "lh"
	HandRight Hand = "rh"
)

// Note is one pitch within a NoteEvent, optionally tagged with hand and
// contrapuntal voice (1-4, 0 = untagged).
type Note struct {
	Pitch uint8
	Hand  Hand
	Voice uint8
}

// Event is the sum type over the four event variants. Each variant owns
// only the fields it needs.
type Event interface {
	// Beat is the event's start position in beats.
	Beat() float64
	isEvent()
}

// NoteEvent sounds one or more pitches together for Duration beats.
type NoteEvent struct {
	Start    float64
	Duration float64
	Velocity uint8
	Notes    []Note

	// Pass-through annotations, echoed unmodified.
	Section string
	Phrase  string
}

// PedalEvent is a sustain-pedal action. Duration 0 is an instantaneous
// controller sample; Value 127 is a full press, 0 a release, anything
// between a half-pedal position.
type PedalEvent struct {
	Start    float64
	Duration float64
	Value    uint8

	Section string
	Phrase  string
}

// TempoRamp interpolates bpm linearly over Beats beats, then holds ToBPM.
type TempoRamp struct {
	FromBPM float64
	ToBPM   float64
	Beats   float64
}

// TempoEvent either sets an instant tempo (Ramp nil, BPM set) or starts
// a gradual ramp (Ramp set, BPM zero). Exactly one form is valid.
type TempoEvent struct {
	Start float64
	BPM   float64
	Ramp  *TempoRamp
}

// SectionEvent is a pure annotation marking a named position.
type SectionEvent struct {
	Start float64
	Label string
}

func (e NoteEvent) Beat() float64    { return e.Start }
func (e PedalEvent) Beat() float64   { return e.Start }
func (e TempoEvent) Beat() float64   { return e.Start }
func (e SectionEvent) Beat() float64 { return e.Start }

func (NoteEvent) isEvent()    {}
func (PedalEvent) isEvent()   {}
func (TempoEvent) isEvent()   {}
func (SectionEvent) isEvent() {}

// NewComposition validates and assembles a composition. It is the single
// gate every construction path goes through; once it returns without
// error the value satisfies every model invariant.
func NewComposition(title string, bpm float64, ts TimeSignature, ppq int, keySignature string, tracks []Track) (Composition, error) {
	c := Composition{
		Title:         title,
		BPM:           bpm,
		TimeSignature: ts,
		PPQ:           ppq,
		KeySignature:  keySignature,
		Tracks:        tracks,
	}
	if err := c.Validate(); err != nil {
		return Composition{}, err
	}
	return c, nil
}

// Validate checks every model invariant and reports the first violation
// with its track and event index.
func (c Composition) Validate() error {
	if c.BPM < MinTempoBPM || c.BPM > MaxTempoBPM {
		return compositionError("bpm %g outside playable range %g..%g", c.BPM, MinTempoBPM, MaxTempoBPM)
	}
	if c.TimeSignature.Numerator <= 0 {
		return compositionError("time signature numerator %d must be positive", c.TimeSignature.Numerator)
	}
	if !isPowerOfTwo(c.TimeSignature.Denominator) {
		return compositionError("time signature denominator %d must be a power of two", c.TimeSignature.Denominator)
	}
	if c.PPQ <= 0 {
		return compositionError("ppq %d must be positive", c.PPQ)
	}
	if len(c.Tracks) == 0 {
		return compositionError("composition needs at least one track")
	}
	for ti, tr := range c.Tracks {
		if tr.Channel > MaxChannel {
			return trackError(ti, "channel %d outside 0..%d", tr.Channel, MaxChannel)
		}
		if tr.Program > MaxProgram {
			return trackError(ti, "program %d outside 0..%d", tr.Program, MaxProgram)
		}
		for ei, ev := range tr.Events {
			if err := validateEvent(ev); err != nil {
				return eventError(ti, ei, err)
			}
		}
	}
	return nil
}

func validateEvent(ev Event) error {
	switch e := ev.(type) {
	case NoteEvent:
		if e.Start < 0 {
			return fmt.Errorf("note start %g must be >= 0", e.Start)
		}
		if e.Duration <= 0 {
			return fmt.Errorf("note duration %g must be positive", e.Duration)
		}
		if e.Velocity > MaxVelocity {
			return fmt.Errorf("velocity %d outside 0..%d", e.Velocity, MaxVelocity)
		}
		if len(e.Notes) == 0 {
			return fmt.Errorf("note event has no pitches")
		}
		for _, n := range e.Notes {
			if n.Pitch > MaxPitch {
				return fmt.Errorf("pitch %d outside 0..%d", n.Pitch, MaxPitch)
			}
			if n.Hand != HandNone && n.Hand != HandLeft && n.Hand != HandRight {
				return fmt.Errorf("hand %q must be %q or %q", n.Hand, HandLeft, HandRight)
			}
			if n.Voice > 4 {
				return fmt.Errorf("voice %d outside 1..4", n.Voice)
			}
		}
	case PedalEvent:
		if e.Start < 0 {
			return fmt.Errorf("pedal start %g must be >= 0", e.Start)
		}
		if e.Duration < 0 {
			return fmt.Errorf("pedal duration %g must be >= 0", e.Duration)
		}
		if e.Value > MaxPedalValue {
			return fmt.Errorf("pedal value %d outside 0..%d", e.Value, MaxPedalValue)
		}
	case TempoEvent:
		if e.Start < 0 {
			return fmt.Errorf("tempo start %g must be >= 0", e.Start)
		}
		if e.BPM != 0 && e.Ramp != nil {
			return fmt.Errorf("tempo event has both an instant bpm and a ramp")
		}
		if e.BPM == 0 && e.Ramp == nil {
			return fmt.Errorf("tempo event has neither an instant bpm nor a ramp")
		}
		if e.Ramp != nil {
			if e.Ramp.Beats <= 0 {
				return fmt.Errorf("tempo ramp duration %g must be positive", e.Ramp.Beats)
			}
			if err := checkBPM(e.Ramp.FromBPM); err != nil {
				return err
			}
			if err := checkBPM(e.Ramp.ToBPM); err != nil {
				return err
			}
		} else if err := checkBPM(e.BPM); err != nil {
			return err
		}
	case SectionEvent:
		if e.Start < 0 {
			return fmt.Errorf("section start %g must be >= 0", e.Start)
		}
		if e.Label == "" {
			return fmt.Errorf("section label must not be empty")
		}
	default:
		return fmt.Errorf("unknown event variant %T", ev)
	}
	return nil
}

func checkBPM(bpm float64) error {
	if bpm < MinTempoBPM || bpm > MaxTempoBPM {
		return fmt.Errorf("bpm %g outside playable range %g..%g", bpm, MinTempoBPM, MaxTempoBPM)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// LastNoteEnd returns the end beat of the track's latest-ending note,
// or 0 if the track has no notes.
func (t Track) LastNoteEnd() float64 {
	end := 0.0
	for _, ev := range t.Events {
		if n, ok := ev.(NoteEvent); ok {
			if e := n.Start + n.Duration; e > end {
				end = e
			}
		}
	}
	return end
}

// eventRank fixes the tie-break order used whenever events are sorted by
// (start, type) for determinism.
func eventRank(ev Event) int {
	switch ev.(type) {
	case TempoEvent:
		return 0
	case SectionEvent:
		return 1
	case PedalEvent:
		return 2
	default:
		return 3
	}
}

// SortEvents returns the events ordered by (start, type rank), keeping
// encounter order within ties.
func SortEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Beat() != out[j].Beat() {
			return out[i].Beat() < out[j].Beat()
		}
		return eventRank(out[i]) < eventRank(out[j])
	})
	return out
}
