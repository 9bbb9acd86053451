// Package main is the entry point for the pianist CLI
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tylerforesthauser/pianist-sub000/pkg/api"
	"github.com/tylerforesthauser/pianist-sub000/pkg/convert"
	"github.com/tylerforesthauser/pianist-sub000/pkg/score"
	"github.com/tylerforesthauser/pianist-sub000/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile     string
	normalizeFlag  bool
	transposeFlag  int
	serverPort     int
	pedalMargin    float64
	pedalMinDur    float64
	pedalMaxExtend float64
	pedalDefault   float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pianist",
	Short: "Convert beat-time composition documents to Standard MIDI Files and back",
	Long: `pianist converts structured beat-time descriptions of musical pieces
(notes, sustain-pedal actions, tempo changes, section markers) into
byte-exact Standard MIDI Files, and the reverse.

Malformed sustain-pedal patterns from text generators or lossy
re-imports are repaired by a deterministic normalizer before encoding.

Examples:
  pianist convert piece.json -o piece.mid
  pianist json2midi piece.json -o piece.mid --normalize
  pianist midi2json piece.mid -o piece.json
  pianist normalize piece.json -o fixed.json
  pianist transpose piece.json -s -2 -o down.json
  pianist tui
  pianist serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Auto-detect and convert between formats",
	Long:  `Automatically detects input format and converts to the output format based on file extension.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var json2midiCmd = &cobra.Command{
	Use:   "json2midi <input.json>",
	Short: "Render a composition document to a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJSONToMIDI,
}

var midi2jsonCmd = &cobra.Command{
	Use:   "midi2json <input.mid>",
	Short: "Import a MIDI file into a composition document",
	Args:  cobra.ExactArgs(1),
	RunE:  runMIDIToJSON,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <input.json>",
	Short: "Repair degenerate sustain-pedal patterns in a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runNormalize,
}

var transposeCmd = &cobra.Command{
	Use:   "transpose <input.json>",
	Short: "Transpose all pitches by a number of semitones",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranspose,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Pedal normalizer heuristics, shared by every subcommand
	cfg := score.DefaultPedalConfig()
	rootCmd.PersistentFlags().Float64Var(&pedalMargin, "pedal-margin", cfg.Margin, "Anti-overlap margin in beats when extending an unpaired press")
	rootCmd.PersistentFlags().Float64Var(&pedalMinDur, "pedal-min", cfg.MinDuration, "Minimum duration in beats for a rebuilt pedal interval")
	rootCmd.PersistentFlags().Float64Var(&pedalMaxExtend, "pedal-cap", cfg.MaxExtend, "Maximum extension in beats for an unpaired press")
	rootCmd.PersistentFlags().Float64Var(&pedalDefault, "pedal-default", cfg.DefaultExtend, "Fallback duration in beats when a track gives no usable note end")

	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	convertCmd.Flags().BoolVar(&normalizeFlag, "normalize", false, "Run pedal normalization before encoding")
	convertCmd.Flags().IntVarP(&transposeFlag, "semitones", "s", 0, "Transpose by this many semitones")
	_ = convertCmd.MarkFlagRequired("output")

	json2midiCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file path")
	json2midiCmd.Flags().BoolVar(&normalizeFlag, "normalize", false, "Run pedal normalization before rendering")
	json2midiCmd.Flags().IntVarP(&transposeFlag, "semitones", "s", 0, "Transpose by this many semitones")

	midi2jsonCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .json file path")
	midi2jsonCmd.Flags().BoolVar(&normalizeFlag, "normalize", false, "Run pedal normalization after importing")

	normalizeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .json file path")

	transposeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .json file path")
	transposeCmd.Flags().IntVarP(&transposeFlag, "semitones", "s", 0, "Transpose by this many semitones")

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(json2midiCmd)
	rootCmd.AddCommand(midi2jsonCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(transposeCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func pedalConfig() score.PedalConfig {
	return score.PedalConfig{
		Margin:        pedalMargin,
		MinDuration:   pedalMinDur,
		MaxExtend:     pedalMaxExtend,
		DefaultExtend: pedalDefault,
	}
}

func options() convert.Options {
	return convert.Options{
		NormalizePedal: normalizeFlag,
		Pedal:          pedalConfig(),
		Transpose:      transposeFlag,
	}
}

func getOutputPath(input, defaultExt string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + defaultExt
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]

	fmt.Printf("Converting %s -> %s\n", input, outputFile)
	if err := convert.ConvertFile(input, outputFile, options()); err != nil {
		return err
	}
	fmt.Println("Conversion complete!")
	return nil
}

func runJSONToMIDI(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input, ".mid")

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	result, err := convert.JSONToMIDI(data, options())
	if err != nil {
		return err
	}

	if err := convert.WriteFileAtomic(output, result); err != nil {
		return err
	}

	fmt.Printf("Converted %s -> %s\n", input, output)
	return nil
}

func runMIDIToJSON(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input, ".json")

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	result, err := convert.MIDIToJSON(data, options())
	if err != nil {
		return err
	}

	if err := convert.WriteFileAtomic(output, result); err != nil {
		return err
	}

	fmt.Printf("Converted %s -> %s\n", input, output)
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := outputFile
	if output == "" {
		output = input
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	result, err := convert.NormalizeJSON(data, pedalConfig())
	if err != nil {
		return err
	}

	if err := convert.WriteFileAtomic(output, result); err != nil {
		return err
	}

	fmt.Printf("Normalized %s -> %s\n", input, output)
	return nil
}

func runTranspose(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input, ".transposed.json")

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	c, err := score.ParseDocument(data)
	if err != nil {
		return err
	}
	c, err = score.Transpose(c, transposeFlag)
	if err != nil {
		return err
	}
	result, err := score.EncodeDocument(c)
	if err != nil {
		return err
	}

	if err := convert.WriteFileAtomic(output, result); err != nil {
		return err
	}

	fmt.Printf("Transposed %s by %+d semitones -> %s\n", input, transposeFlag, output)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run()
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort)
}
