package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/segment"
	"github.com/MrWong99/voicenote/pkg/frame"
	"github.com/MrWong99/voicenote/pkg/note"
	"github.com/MrWong99/voicenote/pkg/notesink/smf"
)

// capture is a recorded front-end stream:
//
//	duration_seconds: 4
//	frames:
//	  - {t: 0.00, pitch: 0, amp: 0.01}
//	  - {t: 0.02, pitch: 441.2, amp: 0.6}
//	onsets:
//	  - {t: 0.02, pitch: 440}
type capture struct {
	Duration float64       `yaml:"duration_seconds"`
	Frames   []frame.Frame `yaml:"frames"`
	Onsets   []frame.Onset `yaml:"onsets"`
}

func loadCapture(r io.Reader) (*capture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c capture
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("replay: empty capture")
		}
		return nil, fmt.Errorf("replay: decode capture: %w", err)
	}
	for i := 1; i < len(c.Frames); i++ {
		if c.Frames[i].Timestamp < c.Frames[i-1].Timestamp {
			return nil, fmt.Errorf("replay: frame %d at %gs is before frame %d", i, c.Frames[i].Timestamp, i-1)
		}
	}
	return &c, nil
}

// replayResult is what one offline pass produced.
type replayResult struct {
	segment.Result
	Duration float64
	Notes    []note.Event
}

// replay runs the segmentation pipeline over c exactly as a live recording
// of the same input would.
func replay(c *capture, cfg *config.Config) replayResult {
	buf := frame.FromFrames(c.Frames)
	duration := max(c.Duration, buf.LastTimestamp())
	res := segment.Build(buf, c.Onsets, duration, cfg.Analysis.Params())
	return replayResult{
		Result:   res,
		Duration: res.Segment.Duration(),
		Notes:    note.Derive(res.Segment, cfg.Playback.NoteSamplingIntervalSeconds),
	}
}

func runReplay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	capturePath := fs.String("capture", "", "path to the YAML capture file (required)")
	configPath := fs.String("config", "", "optional configuration file for analysis and playback settings")
	smfPath := fs.String("smf", "", "write the derived notes as a Standard MIDI File")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *capturePath == "" {
		fmt.Fprintln(stderr, "voicenote replay: -capture is required")
		fs.Usage()
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "voicenote replay: %v\n", err)
			return 1
		}
	}

	f, err := os.Open(*capturePath)
	if err != nil {
		fmt.Fprintf(stderr, "voicenote replay: %v\n", err)
		return 1
	}
	c, err := loadCapture(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(stderr, "voicenote replay: %v\n", err)
		return 1
	}
	if err := cfg.Analysis.CheckWindow(max(c.Duration, 0)); err != nil {
		fmt.Fprintf(stderr, "voicenote replay: warning: %v\n", err)
	}

	res := replay(c, cfg)
	printReplay(stdout, c, res)

	if *smfPath != "" {
		opts := smf.Options{
			Channel:  uint8(cfg.Sinks.MIDI.Channel),
			Velocity: uint8(cfg.Playback.Velocity),
			Name:     "voicenote replay",
		}
		if err := smf.Save(*smfPath, res.Notes, opts); err != nil {
			fmt.Fprintf(stderr, "voicenote replay: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", *smfPath)
	}
	return 0
}

func printReplay(w io.Writer, c *capture, res replayResult) {
	fmt.Fprintf(w, "frames %d  onsets %d  duration %.3fs\n", len(c.Frames), len(c.Onsets), res.Duration)
	fmt.Fprintf(w, "dropped: silent %d  jump %d\n", res.Denoise.Silent, res.Denoise.Jumps)
	fmt.Fprintf(w, "sound objects %d  (unpitched %d, too short %d, overlapping %d)\n",
		len(res.Objects), res.Extract.Unpitched, res.Extract.TooShort, res.Extract.Overlapping)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NOTE\tHZ\tSTART\tEND")
	for _, e := range res.Notes {
		fmt.Fprintf(tw, "%d\t%.1f\t%.3f\t%.3f\n", e.Note, note.ToHz(e.Note), e.Start, e.End)
	}
	tw.Flush()
}
