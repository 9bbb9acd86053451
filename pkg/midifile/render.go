// Package midifile converts between the beat-time composition model and
// Standard MIDI File bytes (format 1): one conductor track carrying the
// tempo, meter, key and marker metas, plus one track per musical track.
package midifile

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// CC64 is the sustain (damper) pedal controller.
const CC64 = 64

// Same-tick ordering: releases before presses before everything else,
// so a chord repeated back to back releases cleanly and a pedal lift
// never swallows the next press.
const (
	rankRelease = iota
	rankPress
	rankOther
)

// Ramp subdivision density: a gradual tempo ramp becomes one tempo meta
// per quarter of a beat, capped, trading file size against fidelity.
// The bpm error against the ideal line is at most the per-step bpm
// delta, which rampSteps bounds.
const (
	rampStepsPerBeat = 4
	maxRampSteps     = 64
)

type timedMessage struct {
	tick uint32
	rank int
	key  uint8
	msg  smf.Message
}

// Render encodes a composition as SMF bytes. The output is a pure
// function of the input: repeated runs are byte-identical.
func Render(c score.Composition) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tm := c.TempoMap()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(uint16(c.PPQ))

	if err := s.Add(conductorTrack(c, tm)); err != nil {
		return nil, fmt.Errorf("failed to add conductor track: %w", err)
	}
	for i, tr := range c.Tracks {
		if err := s.Add(musicalTrack(tr, tm)); err != nil {
			return nil, fmt.Errorf("failed to add track %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// conductorTrack carries everything track-independent: title, initial
// tempo, time signature, key signature, tempo changes and section
// markers from all tracks.
func conductorTrack(c score.Composition, tm *score.TempoMap) smf.Track {
	var msgs []timedMessage
	add := func(tick uint32, msg smf.Message) {
		msgs = append(msgs, timedMessage{tick: tick, rank: rankOther, msg: msg})
	}

	if c.Title != "" {
		add(0, metaTrackName(c.Title))
	}
	add(0, metaTempo(c.BPM))
	add(0, metaTimeSignature(c.TimeSignature))
	if sf, mi, ok := keySignatureBytes(c.KeySignature); ok {
		add(0, metaKeySignature(sf, mi))
	}

	for _, tr := range c.Tracks {
		for _, ev := range tr.Events {
			switch e := ev.(type) {
			case score.TempoEvent:
				for _, pt := range subdivideTempo(e) {
					add(roundTick(tm.BeatsToTicks(pt.beat)), metaTempo(pt.bpm))
				}
			case score.SectionEvent:
				add(roundTick(tm.BeatsToTicks(e.Start)), metaMarker(e.Label))
			}
		}
	}

	return assemble(msgs)
}

type tempoPoint struct {
	beat float64
	bpm  float64
}

// subdivideTempo expands a tempo event into the meta points to emit. An
// instant change is a single point; a ramp becomes a bounded staircase
// ending exactly on the target bpm.
func subdivideTempo(e score.TempoEvent) []tempoPoint {
	if e.Ramp == nil {
		return []tempoPoint{{beat: e.Start, bpm: e.BPM}}
	}
	steps := int(math.Ceil(e.Ramp.Beats * rampStepsPerBeat))
	if steps < 1 {
		steps = 1
	}
	if steps > maxRampSteps {
		steps = maxRampSteps
	}
	pts := make([]tempoPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		pts = append(pts, tempoPoint{
			beat: e.Start + e.Ramp.Beats*frac,
			bpm:  e.Ramp.FromBPM + (e.Ramp.ToBPM-e.Ramp.FromBPM)*frac,
		})
	}
	return pts
}

func musicalTrack(tr score.Track, tm *score.TempoMap) smf.Track {
	var msgs []timedMessage

	for _, ev := range score.SortEvents(tr.Events) {
		switch e := ev.(type) {
		case score.NoteEvent:
			onTick := roundTick(tm.BeatsToTicks(e.Start))
			offTick := roundTick(tm.BeatsToTicks(e.Start + e.Duration))
			// A note must sound: never emit a zero-length pair.
			if offTick <= onTick {
				offTick = onTick + 1
			}
			for _, n := range sortedByPitch(e.Notes) {
				msgs = append(msgs,
					timedMessage{tick: onTick, rank: rankPress, key: n.Pitch, msg: smf.Message(midi.NoteOn(tr.Channel, n.Pitch, e.Velocity))},
					timedMessage{tick: offTick, rank: rankRelease, key: n.Pitch, msg: smf.Message(midi.NoteOff(tr.Channel, n.Pitch))},
				)
			}
		case score.PedalEvent:
			rank := rankPress
			if e.Value == score.PedalRelease {
				rank = rankRelease
			}
			msgs = append(msgs, timedMessage{
				tick: roundTick(tm.BeatsToTicks(e.Start)),
				rank: rank,
				msg:  smf.Message(midi.ControlChange(tr.Channel, CC64, e.Value)),
			})
			if e.Duration > 0 {
				msgs = append(msgs, timedMessage{
					tick: roundTick(tm.BeatsToTicks(e.Start + e.Duration)),
					rank: rankRelease,
					msg:  smf.Message(midi.ControlChange(tr.Channel, CC64, score.PedalRelease)),
				})
			}
		}
	}

	track := smf.Track{}
	if tr.Name != "" {
		track.Add(0, metaTrackName(tr.Name))
	}
	track.Add(0, smf.Message(midi.ProgramChange(tr.Channel, tr.Program)))
	appendSorted(&track, msgs)
	track.Close(0)
	return track
}

func assemble(msgs []timedMessage) smf.Track {
	track := smf.Track{}
	appendSorted(&track, msgs)
	track.Close(0)
	return track
}

// appendSorted orders messages by (tick, rank, pitch), keeping
// construction order within ties, and delta-encodes them onto the
// track.
func appendSorted(track *smf.Track, msgs []timedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		if msgs[i].rank != msgs[j].rank {
			return msgs[i].rank < msgs[j].rank
		}
		return msgs[i].key < msgs[j].key
	})
	var lastTick uint32
	for _, m := range msgs {
		track.Add(m.tick-lastTick, m.msg)
		lastTick = m.tick
	}
}

func sortedByPitch(notes []score.Note) []score.Note {
	out := make([]score.Note, len(notes))
	copy(out, notes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pitch < out[j].Pitch })
	return out
}

func roundTick(t float64) uint32 {
	if t <= 0 {
		return 0
	}
	return uint32(math.Round(t))
}

// Raw meta-message construction. The bytes include the meta length
// field, matching how they come back out of smf.ReadFrom.

func metaTempo(bpm float64) smf.Message {
	micros := uint32(math.Round(60000000 / bpm))
	return smf.Message([]byte{0xFF, 0x51, 0x03, byte(micros >> 16), byte(micros >> 8), byte(micros)})
}

func metaTimeSignature(ts score.TimeSignature) smf.Message {
	dd := byte(0)
	for d := ts.Denominator; d > 1; d >>= 1 {
		dd++
	}
	return smf.Message([]byte{0xFF, 0x58, 0x04, byte(ts.Numerator), dd, 0x18, 0x08})
}

func metaKeySignature(sf int8, mi byte) smf.Message {
	return smf.Message([]byte{0xFF, 0x59, 0x02, byte(sf), mi})
}

func metaTrackName(name string) smf.Message {
	return metaText(0x03, name)
}

func metaMarker(label string) smf.Message {
	return metaText(0x06, label)
}

func metaText(metaType byte, text string) smf.Message {
	// Single-byte length keeps the variable-length encoding trivial.
	if len(text) > 127 {
		text = text[:127]
	}
	msg := append([]byte{0xFF, metaType, byte(len(text))}, text...)
	return smf.Message(msg)
}
