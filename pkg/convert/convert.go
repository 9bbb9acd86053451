// Package convert orchestrates file-level conversions between the
// composition interchange document and Standard MIDI Files.
package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tylerforesthauser/pianist-sub000/pkg/midifile"
	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
)

// Format represents a file format
type Format string

const (
	FormatJSON    Format = "json"
	FormatMIDI    Format = "midi"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".mid", ".midi":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	if string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	trimmed := strings.TrimLeft(string(data[:4]), " \t\r\n")
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}
	return FormatUnknown
}

// Options tunes a conversion run.
type Options struct {
	// NormalizePedal runs the pedal pattern normalizer on the
	// composition before encoding the output.
	NormalizePedal bool
	// Pedal supplies the normalizer's heuristics.
	Pedal score.PedalConfig
	// Transpose shifts all pitches by this many semitones.
	Transpose int
}

// DefaultOptions returns the defaults: no transposition, normalization
// off, tuned pedal constants.
func DefaultOptions() Options {
	return Options{Pedal: score.DefaultPedalConfig()}
}

// JSONToMIDI converts an interchange document to SMF bytes.
func JSONToMIDI(data []byte, opts Options) ([]byte, error) {
	c, err := score.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	c, err = applyOptions(c, opts)
	if err != nil {
		return nil, err
	}
	return midifile.Render(c)
}

// MIDIToJSON converts SMF bytes to an interchange document.
func MIDIToJSON(data []byte, opts Options) ([]byte, error) {
	c, err := midifile.Import(data)
	if err != nil {
		return nil, err
	}
	c, err = applyOptions(c, opts)
	if err != nil {
		return nil, err
	}
	return score.EncodeDocument(c)
}

// NormalizeJSON rewrites a document's degenerate pedal patterns.
func NormalizeJSON(data []byte, cfg score.PedalConfig) ([]byte, error) {
	c, err := score.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return score.EncodeDocument(score.NormalizePedals(c, cfg))
}

func applyOptions(c score.Composition, opts Options) (score.Composition, error) {
	if opts.NormalizePedal {
		c = score.NormalizePedals(c, opts.Pedal)
	}
	if opts.Transpose != 0 {
		return score.Transpose(c, opts.Transpose)
	}
	return c, nil
}

// ConvertFile converts between formats chosen by file extension,
// sniffing the input's content when its extension is unknown.
func ConvertFile(inputPath, outputPath string, opts Options) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	inputFormat := DetectFormat(inputPath)
	if inputFormat == FormatUnknown {
		inputFormat = DetectFormatFromContent(data)
	}
	outputFormat := DetectFormat(outputPath)
	if outputFormat == FormatUnknown {
		return errors.New("cannot determine output format from filename")
	}

	var outputData []byte
	switch {
	case inputFormat == FormatJSON && outputFormat == FormatMIDI:
		outputData, err = JSONToMIDI(data, opts)
	case inputFormat == FormatMIDI && outputFormat == FormatJSON:
		outputData, err = MIDIToJSON(data, opts)
	case inputFormat == FormatJSON && outputFormat == FormatJSON:
		outputData, err = NormalizeJSON(data, opts.Pedal)
	default:
		return fmt.Errorf("unsupported conversion: %s to %s", inputFormat, outputFormat)
	}
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	if err := WriteFileAtomic(outputPath, outputData); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and
// renames it into place, so a failed conversion never leaves a partial
// output file behind.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pianist-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"json -> midi",
		"midi -> json",
		"json -> json (pedal normalization)",
	}
}
