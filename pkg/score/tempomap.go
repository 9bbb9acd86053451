package score

import (
	"math"
	"sort"
)

// TempoMap resolves beat positions against a composition's single global
// tempo timeline. Ticks are anchored to the top-level bpm: one beat at
// the anchor tempo is exactly PPQ ticks, and slower or faster passages
// stretch or shrink proportionally, so beats→ticks integrates the
// instantaneous tempo curve rather than multiplying by a constant.
type TempoMap struct {
	ppq      float64
	baseBPM  float64
	segments []tempoSegment
}

// tempoSegment covers [startBeat, next segment's startBeat). A ramping
// segment interpolates fromBPM..toBPM over rampBeats beats, then holds
// toBPM for the rest of the segment. rampBeats 0 means constant tempo.
type tempoSegment struct {
	startBeat float64
	startTick float64
	fromBPM   float64
	toBPM     float64
	rampBeats float64
}

// NewTempoMap builds a map from an anchor tempo and the tempo events of
// a whole composition, given in encounter order. Events are sorted by
// start; when two share a start, the later one in encounter order wins
// from that beat on.
func NewTempoMap(ppq int, baseBPM float64, events []TempoEvent) *TempoMap {
	sorted := make([]TempoEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	m := &TempoMap{
		ppq:     float64(ppq),
		baseBPM: baseBPM,
		segments: []tempoSegment{{
			startBeat: 0,
			startTick: 0,
			fromBPM:   baseBPM,
			toBPM:     baseBPM,
		}},
	}
	for _, ev := range sorted {
		seg := tempoSegment{startBeat: ev.Start}
		if ev.Ramp != nil {
			seg.fromBPM = ev.Ramp.FromBPM
			seg.toBPM = ev.Ramp.ToBPM
			seg.rampBeats = ev.Ramp.Beats
		} else {
			seg.fromBPM = ev.BPM
			seg.toBPM = ev.BPM
		}
		last := &m.segments[len(m.segments)-1]
		if seg.startBeat == last.startBeat {
			// Same-beat tie: the later event replaces the earlier.
			seg.startTick = last.startTick
			*last = seg
			continue
		}
		seg.startTick = last.startTick + last.ticksInto(seg.startBeat-last.startBeat, m.ppq, m.baseBPM)
		m.segments = append(m.segments, seg)
	}
	return m
}

// TempoMap builds the composition's global tempo map from the tempo
// events of all tracks.
func (c Composition) TempoMap() *TempoMap {
	var events []TempoEvent
	for _, tr := range c.Tracks {
		for _, ev := range tr.Events {
			if te, ok := ev.(TempoEvent); ok {
				events = append(events, te)
			}
		}
	}
	return NewTempoMap(c.PPQ, c.BPM, events)
}

// bpmInto is the instantaneous tempo x beats into the segment.
func (s tempoSegment) bpmInto(x float64) float64 {
	if s.rampBeats <= 0 || x >= s.rampBeats || s.fromBPM == s.toBPM {
		return s.toBPM
	}
	if x <= 0 {
		return s.fromBPM
	}
	return s.fromBPM + (s.toBPM-s.fromBPM)*x/s.rampBeats
}

// ticksInto integrates ppq*base/bpm(u) du over the first x beats of the
// segment. For the linear ramp portion the integral of 1/bpm is a log.
func (s tempoSegment) ticksInto(x, ppq, base float64) float64 {
	if x <= 0 {
		return 0
	}
	return ppq * base * s.beatIntegral(x)
}

// beatIntegral is ∫₀ˣ du/bpm(u) for this segment.
func (s tempoSegment) beatIntegral(x float64) float64 {
	if s.rampBeats <= 0 || s.fromBPM == s.toBPM {
		return x / s.toBPM
	}
	k := (s.toBPM - s.fromBPM) / s.rampBeats
	rampSpan := math.Min(x, s.rampBeats)
	total := math.Log((s.fromBPM+k*rampSpan)/s.fromBPM) / k
	if x > s.rampBeats {
		total += (x - s.rampBeats) / s.toBPM
	}
	return total
}

// beatsFor inverts beatIntegral: how many beats into the segment does
// the accumulated integral q correspond to.
func (s tempoSegment) beatsFor(q float64) float64 {
	if q <= 0 {
		return 0
	}
	if s.rampBeats <= 0 || s.fromBPM == s.toBPM {
		return q * s.toBPM
	}
	k := (s.toBPM - s.fromBPM) / s.rampBeats
	qRamp := math.Log(s.toBPM/s.fromBPM) / k
	if q <= qRamp {
		return s.fromBPM * (math.Exp(k*q) - 1) / k
	}
	return s.rampBeats + (q-qRamp)*s.toBPM
}

func (m *TempoMap) segmentAtBeat(beat float64) tempoSegment {
	seg := m.segments[0]
	for _, s := range m.segments[1:] {
		if s.startBeat > beat {
			break
		}
		seg = s
	}
	return seg
}

func (m *TempoMap) segmentAtTick(tick float64) tempoSegment {
	seg := m.segments[0]
	for _, s := range m.segments[1:] {
		if s.startTick > tick {
			break
		}
		seg = s
	}
	return seg
}

// BeatsToTicks converts a beat position to a (fractional) tick position.
func (m *TempoMap) BeatsToTicks(beat float64) float64 {
	if beat <= 0 {
		return 0
	}
	seg := m.segmentAtBeat(beat)
	return seg.startTick + seg.ticksInto(beat-seg.startBeat, m.ppq, m.baseBPM)
}

// TicksToBeats is the inverse of BeatsToTicks.
func (m *TempoMap) TicksToBeats(tick float64) float64 {
	if tick <= 0 {
		return 0
	}
	seg := m.segmentAtTick(tick)
	q := (tick - seg.startTick) / (m.ppq * m.baseBPM)
	return seg.startBeat + seg.beatsFor(q)
}

// BeatsToSeconds converts a beat position to elapsed real time. With
// tick scaling anchored at the base tempo, real time is proportional to
// ticks.
func (m *TempoMap) BeatsToSeconds(beat float64) float64 {
	return m.BeatsToTicks(beat) * 60 / (m.baseBPM * m.ppq)
}

// BPMAt reports the instantaneous tempo at a beat position.
func (m *TempoMap) BPMAt(beat float64) float64 {
	seg := m.segmentAtBeat(beat)
	return seg.bpmInto(beat - seg.startBeat)
}
