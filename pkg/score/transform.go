package score

import "fmt"

// Transpose shifts every pitch by the given number of semitones and
// returns a new composition. A shift that would push any pitch outside
// 0..127 is rejected rather than clamped.
func Transpose(c Composition, semitones int) (Composition, error) {
	tracks := make([]Track, len(c.Tracks))
	for ti, tr := range c.Tracks {
		events := make([]Event, len(tr.Events))
		for ei, ev := range tr.Events {
			n, ok := ev.(NoteEvent)
			if !ok {
				events[ei] = ev
				continue
			}
			notes := make([]Note, len(n.Notes))
			for ni, note := range n.Notes {
				p := int(note.Pitch) + semitones
				if p < 0 || p > MaxPitch {
					return Composition{}, eventError(ti, ei, errPitchShift(note.Pitch, semitones, p))
				}
				note.Pitch = uint8(p)
				notes[ni] = note
			}
			n.Notes = notes
			events[ei] = n
		}
		out := tr
		out.Events = events
		tracks[ti] = out
	}
	out := c
	out.Tracks = tracks
	return out, nil
}

func errPitchShift(pitch uint8, semitones, result int) error {
	return fmt.Errorf("transposing pitch %d by %d gives %d, outside 0..%d", pitch, semitones, result, MaxPitch)
}
