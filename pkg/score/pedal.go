package score

// Pedal pattern normalization. Text producers and lossy re-imports
// routinely emit sustain pedal actions as paired zero-duration samples
// (a value-127 press marker followed by a value-0 release marker), or as
// lone press markers with no release at all. NormalizePedals rewrites
// those degenerate patterns into well-formed sustain intervals.
//
// The pass is best-effort: ambiguous patterns are resolved by a fixed
// deterministic rule (two presses before one release pair the earliest
// press), and the result of normalizing twice equals normalizing once.

// PedalConfig holds the normalizer's heuristics. The values are tuned
// constants, not musical invariants, so they stay configurable.
type PedalConfig struct {
	// Margin is subtracted when extending a press up to the next pedal
	// event, so the rebuilt interval does not overlap it.
	Margin float64
	// MinDuration floors every rebuilt interval.
	MinDuration float64
	// MaxExtend caps how far an unpaired press may reach toward the last
	// note's end.
	MaxExtend float64
	// DefaultExtend is used when the track gives no usable note end.
	DefaultExtend float64
}

// DefaultPedalConfig returns the tuned defaults: 0.1 beat margin and
// minimum, 8 beat cap, 4 beat fallback.
func DefaultPedalConfig() PedalConfig {
	return PedalConfig{Margin: 0.1, MinDuration: 0.1, MaxExtend: 8, DefaultExtend: 4}
}

// NormalizePedals rewrites every track's pedal events and returns a new
// composition. Half-pedal samples (0 < value < 127, duration 0),
// orphaned releases, and events that already have a positive duration
// pass through unchanged.
func NormalizePedals(c Composition, cfg PedalConfig) Composition {
	tracks := make([]Track, len(c.Tracks))
	for i, tr := range c.Tracks {
		tracks[i] = normalizeTrackPedals(tr, cfg)
	}
	out := c
	out.Tracks = tracks
	return out
}

func normalizeTrackPedals(tr Track, cfg PedalConfig) Track {
	var pedals []PedalEvent
	others := make([]Event, 0, len(tr.Events))
	for _, ev := range tr.Events {
		if p, ok := ev.(PedalEvent); ok {
			pedals = append(pedals, p)
		} else {
			others = append(others, ev)
		}
	}
	if len(pedals) == 0 {
		return tr
	}

	sorted := make([]PedalEvent, len(pedals))
	copy(sorted, pedals)
	sortPedalsByStart(sorted)

	lastNoteEnd := tr.LastNoteEnd()
	consumed := make([]bool, len(sorted))
	rebuilt := make([]Event, 0, len(sorted))

	for i, p := range sorted {
		if consumed[i] {
			continue
		}
		if !isBarePress(p) {
			rebuilt = append(rebuilt, p)
			continue
		}

		// Rule 1: pair with the first unconsumed bare release that
		// starts strictly later.
		if j := findRelease(sorted, consumed, i, p.Start); j >= 0 {
			release := sorted[j]
			consumed[i], consumed[j] = true, true
			merged := p
			merged.Duration = release.Start - p.Start
			if merged.Section == "" {
				merged.Section = release.Section
			}
			if merged.Phrase == "" {
				merged.Phrase = release.Phrase
			}
			rebuilt = append(rebuilt, merged)
			continue
		}

		// Rule 2: no release. Extend to just before the next pedal
		// event, or toward the last note's end, capped.
		consumed[i] = true
		extended := p
		if j := findNextPedal(sorted, consumed, i, p.Start); j >= 0 {
			extended.Duration = sorted[j].Start - p.Start - cfg.Margin
			if extended.Duration < cfg.MinDuration {
				extended.Duration = cfg.MinDuration
			}
		} else {
			extended.Duration = lastNoteEnd - p.Start
			if extended.Duration > cfg.MaxExtend {
				extended.Duration = cfg.MaxExtend
			}
			if extended.Duration <= 0 {
				extended.Duration = cfg.DefaultExtend
			}
		}
		rebuilt = append(rebuilt, extended)
	}

	out := tr
	out.Events = SortEvents(append(others, rebuilt...))
	return out
}

// isBarePress reports a degenerate press marker: full value, no span.
func isBarePress(p PedalEvent) bool {
	return p.Duration == 0 && p.Value == PedalPress
}

// isBareRelease reports a degenerate release marker.
func isBareRelease(p PedalEvent) bool {
	return p.Duration == 0 && p.Value == PedalRelease
}

func findRelease(pedals []PedalEvent, consumed []bool, after int, start float64) int {
	for j := after + 1; j < len(pedals); j++ {
		if consumed[j] {
			continue
		}
		if isBareRelease(pedals[j]) && pedals[j].Start > start {
			return j
		}
	}
	return -1
}

func findNextPedal(pedals []PedalEvent, consumed []bool, after int, start float64) int {
	for j := after + 1; j < len(pedals); j++ {
		if consumed[j] {
			continue
		}
		if pedals[j].Start > start {
			return j
		}
	}
	return -1
}

func sortPedalsByStart(pedals []PedalEvent) {
	// Insertion sort keeps encounter order for equal starts; pedal lists
	// are short.
	for i := 1; i < len(pedals); i++ {
		for j := i; j > 0 && pedals[j].Start < pedals[j-1].Start; j-- {
			pedals[j], pedals[j-1] = pedals[j-1], pedals[j]
		}
	}
}
