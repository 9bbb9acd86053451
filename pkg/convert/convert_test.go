package convert

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
)

const minimalDoc = `{
	"title": "Test",
	"tracks": [{"events": [
		{"type": "note", "start": 0, "duration": 1, "pitch": "C4"},
		{"type": "pedal", "start": 0, "duration": 0, "value": 127},
		{"type": "pedal", "start": 2, "duration": 0, "value": 0}
	]}]
}`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"song.json", FormatJSON},
		{"song.JSON", FormatJSON},
		{"song.mid", FormatMIDI},
		{"song.midi", FormatMIDI},
		{"song.MID", FormatMIDI},
		{"song.txt", FormatUnknown},
		{"song", FormatUnknown},
		{"dir.json/song", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := DetectFormat(tt.filename); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"midi header", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"json object", []byte(`{"title": "x"}`), FormatJSON},
		{"json with leading space", []byte("  {\"a\": 1}"), FormatJSON},
		{"too short", []byte("MT"), FormatUnknown},
		{"plain text", []byte("hello world"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormatFromContent(tt.data); got != tt.want {
				t.Errorf("DetectFormatFromContent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONToMIDI(t *testing.T) {
	data, err := JSONToMIDI([]byte(minimalDoc), DefaultOptions())
	if err != nil {
		t.Fatalf("JSONToMIDI() error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("MThd")) {
		t.Errorf("output does not start with the SMF header")
	}
}

func TestJSONToMIDIInvalidDocument(t *testing.T) {
	_, err := JSONToMIDI([]byte(`{"bpm": 1000, "tracks": [{"events": [{"type": "note", "start": 0, "duration": 1, "pitch": "C4"}]}]}`), DefaultOptions())
	if err == nil {
		t.Fatal("JSONToMIDI() accepted an invalid document")
	}
	var verr *score.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error %v is not a ValidationError", err)
	}
}

func TestMIDIToJSONRoundTrip(t *testing.T) {
	midiData, err := JSONToMIDI([]byte(minimalDoc), DefaultOptions())
	if err != nil {
		t.Fatalf("JSONToMIDI() error: %v", err)
	}
	jsonData, err := MIDIToJSON(midiData, DefaultOptions())
	if err != nil {
		t.Fatalf("MIDIToJSON() error: %v", err)
	}
	c, err := score.ParseDocument(jsonData)
	if err != nil {
		t.Fatalf("round-tripped document does not parse: %v", err)
	}
	if c.Title != "Test" {
		t.Errorf("title = %q, want Test", c.Title)
	}
}

func TestNormalizeJSON(t *testing.T) {
	out, err := NormalizeJSON([]byte(minimalDoc), score.DefaultPedalConfig())
	if err != nil {
		t.Fatalf("NormalizeJSON() error: %v", err)
	}
	c, err := score.ParseDocument(out)
	if err != nil {
		t.Fatalf("normalized document does not parse: %v", err)
	}

	var pedals []score.PedalEvent
	for _, ev := range c.Tracks[0].Events {
		if p, ok := ev.(score.PedalEvent); ok {
			pedals = append(pedals, p)
		}
	}
	if len(pedals) != 1 {
		t.Fatalf("got %d pedal events, want the press/release pair merged into 1", len(pedals))
	}
	if pedals[0].Start != 0 || pedals[0].Duration != 2 || pedals[0].Value != 127 {
		t.Errorf("merged pedal = %+v, want a 2-beat sustain from 0", pedals[0])
	}
}

func TestTransposeOption(t *testing.T) {
	opts := DefaultOptions()
	opts.Transpose = 12
	midiData, err := JSONToMIDI([]byte(minimalDoc), opts)
	if err != nil {
		t.Fatalf("JSONToMIDI() error: %v", err)
	}
	jsonData, err := MIDIToJSON(midiData, DefaultOptions())
	if err != nil {
		t.Fatalf("MIDIToJSON() error: %v", err)
	}
	c, err := score.ParseDocument(jsonData)
	if err != nil {
		t.Fatalf("ParseDocument() error: %v", err)
	}
	for _, ev := range c.Tracks[0].Events {
		if n, ok := ev.(score.NoteEvent); ok {
			if n.Notes[0].Pitch != 72 {
				t.Errorf("pitch = %d, want C4 shifted up an octave to 72", n.Notes[0].Pitch)
			}
		}
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "song.json")
	output := filepath.Join(dir, "song.mid")
	if err := os.WriteFile(input, []byte(minimalDoc), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ConvertFile(input, output, DefaultOptions()); err != nil {
		t.Fatalf("ConvertFile() error: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("MThd")) {
		t.Error("output is not an SMF file")
	}
}

func TestConvertFileSniffsContent(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "song.dat")
	output := filepath.Join(dir, "song.mid")
	if err := os.WriteFile(input, []byte(minimalDoc), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ConvertFile(input, output, DefaultOptions()); err != nil {
		t.Fatalf("ConvertFile() with unknown extension error: %v", err)
	}
}

func TestConvertFileUnsupported(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "song.json")
	if err := os.WriteFile(input, []byte(minimalDoc), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ConvertFile(input, filepath.Join(dir, "song.txt"), DefaultOptions()); err == nil {
		t.Error("ConvertFile() accepted an unsupported output format")
	}
}

func TestConvertFileLeavesNoPartialOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "song.json")
	output := filepath.Join(dir, "song.mid")
	if err := os.WriteFile(input, []byte(`{"bpm": 1000, "tracks": []}`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ConvertFile(input, output, DefaultOptions()); err == nil {
		t.Fatal("ConvertFile() accepted an invalid document")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("failed conversion left an output file behind")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	if err := WriteFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic() error: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want the overwrite to win", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestGetSupportedConversions(t *testing.T) {
	if got := GetSupportedConversions(); len(got) == 0 {
		t.Error("GetSupportedConversions() returned nothing")
	}
}
