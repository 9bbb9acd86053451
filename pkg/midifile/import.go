package midifile

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Import decodes SMF bytes into a fresh validated Composition. It
// degrades gracefully on the irregularities real files carry: notes
// without a matching note-off close at end of track, and pedal presses
// without a release come through as zero-duration events for the
// normalizer to repair in a separate explicit step.
func Import(data []byte) (score.Composition, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return score.Composition{}, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	ppq := score.DefaultPPQ
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ppq = int(mt.Resolution())
	}

	metas := collectMetas(s)
	baseBPM, tempoEvents := resolveTempo(ppq, metas.tempos)
	tm := score.NewTempoMap(ppq, baseBPM, tempoEvents)

	var tracks []score.Track
	for _, raw := range s.Tracks {
		tr, ok := importTrack(raw, tm)
		if ok {
			tracks = append(tracks, tr)
		}
	}
	if len(tracks) == 0 {
		return score.Composition{}, fmt.Errorf("no musical tracks in MIDI file")
	}

	// Timeline-level events have no per-track home in an SMF; attach
	// them to the first musical track.
	first := &tracks[0]
	for _, te := range tempoEvents {
		first.Events = append(first.Events, te)
	}
	for _, mk := range metas.markers {
		first.Events = append(first.Events, score.SectionEvent{
			Start: tm.TicksToBeats(float64(mk.tick)),
			Label: mk.label,
		})
	}
	for i := range tracks {
		tracks[i].Events = score.SortEvents(tracks[i].Events)
	}

	ts := score.TimeSignature{Numerator: 4, Denominator: 4}
	if metas.hasTimeSig {
		ts = metas.timeSig
	}

	c, err := score.NewComposition(metas.title, baseBPM, ts, ppq, metas.keySignature, tracks)
	if err != nil {
		return score.Composition{}, fmt.Errorf("imported MIDI is not a valid composition: %w", err)
	}
	return c, nil
}

type tempoMeta struct {
	tick uint64
	bpm  float64
}

type markerMeta struct {
	tick  uint64
	label string
}

type fileMetas struct {
	title        string
	tempos       []tempoMeta
	markers      []markerMeta
	timeSig      score.TimeSignature
	hasTimeSig   bool
	keySignature string
}

// collectMetas walks every track once, accumulating absolute ticks, and
// gathers the timeline metas. The first track's name meta becomes the
// composition title when that track carries no channel messages (the
// conductor-track convention the renderer writes).
func collectMetas(s *smf.SMF) fileMetas {
	var out fileMetas
	for ti, track := range s.Tracks {
		var tick uint64
		var name string
		hasChannel := false
		for _, ev := range track {
			tick += uint64(ev.Delta)
			msg := ev.Message
			if len(msg) == 0 {
				continue
			}
			if msg[0] >= 0x80 && msg[0] < 0xF0 {
				hasChannel = true
				continue
			}
			if msg[0] != 0xFF || len(msg) < 3 {
				continue
			}
			switch msg[1] {
			case 0x51: // tempo
				if msg[2] == 0x03 && len(msg) >= 6 {
					micros := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
					if micros > 0 {
						out.tempos = append(out.tempos, tempoMeta{tick: tick, bpm: 60000000.0 / float64(micros)})
					}
				}
			case 0x58: // time signature
				if msg[2] >= 0x02 && len(msg) >= 5 && !out.hasTimeSig {
					out.timeSig = score.TimeSignature{
						Numerator:   int(msg[3]),
						Denominator: 1 << msg[4],
					}
					out.hasTimeSig = true
				}
			case 0x59: // key signature
				if msg[2] == 0x02 && len(msg) >= 5 && out.keySignature == "" {
					if key, ok := keySignatureName(int8(msg[3]), msg[4]); ok {
						out.keySignature = key
					}
				}
			case 0x06: // marker
				if label := metaTextContent(msg); label != "" {
					out.markers = append(out.markers, markerMeta{tick: tick, label: label})
				}
			case 0x03: // track name
				name = metaTextContent(msg)
			}
		}
		if ti == 0 && !hasChannel && name != "" {
			out.title = name
		}
	}
	sort.SliceStable(out.tempos, func(i, j int) bool { return out.tempos[i].tick < out.tempos[j].tick })
	sort.SliceStable(out.markers, func(i, j int) bool { return out.markers[i].tick < out.markers[j].tick })
	return out
}

// resolveTempo anchors the timeline at the first tick-0 tempo meta (120
// bpm when absent) and turns every later meta into a TempoEvent whose
// beat position is resolved against the map built so far, which is the
// inverse of the renderer's integral.
func resolveTempo(ppq int, tempos []tempoMeta) (float64, []score.TempoEvent) {
	base := score.DefaultBPM
	rest := tempos
	if len(tempos) > 0 && tempos[0].tick == 0 {
		base = tempos[0].bpm
		rest = tempos[1:]
	}
	var events []score.TempoEvent
	for _, t := range rest {
		partial := score.NewTempoMap(ppq, base, events)
		events = append(events, score.TempoEvent{
			Start: partial.TicksToBeats(float64(t.tick)),
			BPM:   t.bpm,
		})
	}
	return base, events
}

type openNote struct {
	tick    uint64
	channel uint8
	pitch   uint8
	vel     uint8
}

type pedalSample struct {
	tick  uint64
	value uint8
}

// importTrack converts one SMF track's channel messages. It returns
// false for tracks with no note or pedal content (conductor tracks).
func importTrack(track smf.Track, tm *score.TempoMap) (score.Track, bool) {
	var (
		tick      uint64
		endTick   uint64
		name      string
		channel   uint8
		gotChan   bool
		program   uint8
		open      []openNote
		pedals    []pedalSample
		events    []score.Event
	)

	noteChannel := func(status byte) uint8 { return status & 0x0F }

	closeNote := func(n openNote, offTick uint64) {
		start := tm.TicksToBeats(float64(n.tick))
		end := tm.TicksToBeats(float64(offTick))
		if end <= start {
			// Zero-length on the wire; keep it audible rather than drop it.
			end = tm.TicksToBeats(float64(n.tick) + 1)
		}
		events = append(events, score.NoteEvent{
			Start:    start,
			Duration: end - start,
			Velocity: n.vel,
			Notes:    []score.Note{{Pitch: n.pitch}},
		})
	}

	for _, ev := range track {
		tick += uint64(ev.Delta)
		if tick > endTick {
			endTick = tick
		}
		msg := ev.Message
		if len(msg) == 0 {
			continue
		}
		status := msg[0]
		switch {
		case status >= 0x90 && status <= 0x9F && len(msg) >= 3 && msg[2] > 0:
			if !gotChan {
				channel, gotChan = noteChannel(status), true
			}
			open = append(open, openNote{tick: tick, channel: noteChannel(status), pitch: msg[1], vel: msg[2]})
		case (status >= 0x80 && status <= 0x8F && len(msg) >= 3) ||
			(status >= 0x90 && status <= 0x9F && len(msg) >= 3 && msg[2] == 0):
			// First unmatched note-on on the same pitch and channel wins.
			for i, n := range open {
				if n.pitch == msg[1] && n.channel == noteChannel(status) {
					closeNote(n, tick)
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
		case status >= 0xB0 && status <= 0xBF && len(msg) >= 3 && msg[1] == CC64:
			if !gotChan {
				channel, gotChan = noteChannel(status), true
			}
			pedals = append(pedals, pedalSample{tick: tick, value: msg[2]})
		case status >= 0xC0 && status <= 0xCF && len(msg) >= 2:
			if !gotChan {
				channel, gotChan = noteChannel(status), true
			}
			program = msg[1]
		case status == 0xFF && len(msg) >= 3 && msg[1] == 0x03:
			name = metaTextContent(msg)
		}
	}

	// Unterminated notes close at end of track.
	for _, n := range open {
		off := endTick
		if off <= n.tick {
			off = n.tick + 1
		}
		closeNote(n, off)
	}

	events = append(events, pairPedals(pedals, tm)...)

	if len(events) == 0 {
		return score.Track{}, false
	}
	return score.Track{
		Name:    name,
		Channel: channel,
		Program: program,
		Events:  events,
	}, true
}

// pairPedals applies the normalizer's pairing rule to raw CC64 samples:
// a full press pairs with the first later release into one sustain
// interval. Unpaired presses stay instantaneous for the normalizer;
// orphan releases and half-pedal values pass through as samples.
func pairPedals(samples []pedalSample, tm *score.TempoMap) []score.Event {
	consumed := make([]bool, len(samples))
	var events []score.Event
	for i, s := range samples {
		if consumed[i] {
			continue
		}
		start := tm.TicksToBeats(float64(s.tick))
		if s.value == score.PedalPress {
			paired := false
			for j := i + 1; j < len(samples); j++ {
				if consumed[j] || samples[j].value != score.PedalRelease || samples[j].tick <= s.tick {
					continue
				}
				consumed[i], consumed[j] = true, true
				events = append(events, score.PedalEvent{
					Start:    start,
					Duration: tm.TicksToBeats(float64(samples[j].tick)) - start,
					Value:    score.PedalPress,
				})
				paired = true
				break
			}
			if paired {
				continue
			}
		}
		consumed[i] = true
		events = append(events, score.PedalEvent{Start: start, Value: s.value})
	}
	return events
}

func metaTextContent(msg []byte) string {
	if len(msg) < 3 {
		return ""
	}
	n := int(msg[2])
	if n > len(msg)-3 {
		n = len(msg) - 3
	}
	return string(msg[3 : 3+n])
}
