package midifile

// Key signature names <-> FF 59 meta fields. The meta carries the
// number of sharps (positive) or flats (negative) and a major/minor
// flag. Only the 30 standard keys are representable; anything else is
// display-only in the model and simply not written.

type keyMeta struct {
	sf int8
	mi byte
}

var keyToMeta = map[string]keyMeta{
	"C": {0, 0}, "G": {1, 0}, "D": {2, 0}, "A": {3, 0}, "E": {4, 0},
	"B": {5, 0}, "F#": {6, 0}, "C#": {7, 0},
	"F": {-1, 0}, "Bb": {-2, 0}, "Eb": {-3, 0}, "Ab": {-4, 0},
	"Db": {-5, 0}, "Gb": {-6, 0}, "Cb": {-7, 0},

	"Am": {0, 1}, "Em": {1, 1}, "Bm": {2, 1}, "F#m": {3, 1}, "C#m": {4, 1},
	"G#m": {5, 1}, "D#m": {6, 1}, "A#m": {7, 1},
	"Dm": {-1, 1}, "Gm": {-2, 1}, "Cm": {-3, 1}, "Fm": {-4, 1},
	"Bbm": {-5, 1}, "Ebm": {-6, 1}, "Abm": {-7, 1},
}

var metaToKey = func() map[keyMeta]string {
	m := make(map[keyMeta]string, len(keyToMeta))
	for name, km := range keyToMeta {
		m[km] = name
	}
	return m
}()

func keySignatureBytes(name string) (sf int8, mi byte, ok bool) {
	km, ok := keyToMeta[name]
	return km.sf, km.mi, ok
}

func keySignatureName(sf int8, mi byte) (string, bool) {
	name, ok := metaToKey[keyMeta{sf, mi}]
	return name, ok
}
