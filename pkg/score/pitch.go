package score

import (
	"fmt"
	"strconv"
	"strings"
)

// Scientific pitch spelling <-> MIDI note number. C4 is middle C (60);
// the mapping is (octave+1)*12 + semitone, so the full 0..127 range runs
// from C-1 to G9.

var letterSemitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// Fixed enharmonic table for accidentals. Double accidentals are
// accepted on input; output always uses the sharp spellings below.
var accidentalOffsets = map[string]int{
	"":   0,
	"#":  1,
	"##": 2,
	"x":  2,
	"b":  -1,
	"bb": -2,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParsePitch resolves a name like "C4", "F#3" or "Bb-1" to a MIDI note
// number.
func ParsePitch(name string) (uint8, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("pitch name %q too short", name)
	}
	letter := name[0]
	if letter >= 'a' && letter <= 'g' {
		letter -= 'a' - 'A'
	}
	base, ok := letterSemitones[letter]
	if !ok {
		return 0, fmt.Errorf("pitch name %q: letter must be A..G", name)
	}

	rest := name[1:]
	accidental := ""
	for _, acc := range []string{"##", "bb", "#", "x", "b"} {
		if strings.HasPrefix(rest, acc) {
			accidental = acc
			break
		}
	}
	rest = rest[len(accidental):]

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("pitch name %q: bad octave %q", name, rest)
	}

	midi := (octave+1)*12 + base + accidentalOffsets[accidental]
	if midi < 0 || midi > MaxPitch {
		return 0, fmt.Errorf("pitch name %q resolves to %d, outside 0..%d", name, midi, MaxPitch)
	}
	return uint8(midi), nil
}

// PitchName returns the canonical sharp spelling of a MIDI note number,
// e.g. 60 -> "C4". ParsePitch(PitchName(p)) == p for all 0..127.
func PitchName(pitch uint8) string {
	return fmt.Sprintf("%s%d", sharpNames[pitch%12], int(pitch)/12-1)
}
