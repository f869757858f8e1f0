package voiceline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Clip is one synthesized segment written to disk, still addressed by
// its source segment index.
type Clip struct {
	Index int
	Path  string
	Kind  Kind
	Voice string
}

// Dispatcher fans segments out to a synthesizer, normalizes the
// results, and writes them into a run-scoped temp directory. A failed
// segment is logged and dropped; surviving clips keep source order.
type Dispatcher struct {
	synth       Synthesizer
	logger      *slog.Logger
	tempDir     string
	maxParallel int

	// now is injectable so tests get stable clip filenames.
	now func() time.Time
}

func NewDispatcher(synth Synthesizer, tempDir string, maxParallel int, logger *slog.Logger) *Dispatcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Dispatcher{
		synth:       synth,
		logger:      logger.With(slog.String("component", "segment-dispatcher")),
		tempDir:     tempDir,
		maxParallel: maxParallel,
		now:         time.Now,
	}
}

// Dispatch synthesizes every segment into the run's temp directory and
// returns the directory plus the surviving clips in segment order.
// Per-segment failures reduce the clip count but never fail the call;
// only an inability to create the run directory, or a dead context,
// is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, runID, speaker string, segments []Segment) (string, []Clip, error) {
	runDir := filepath.Join(d.tempDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create run directory: %w", err)
	}

	stamp := d.now().Format("20060102T150405")
	results := make([]*Clip, len(segments))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.maxParallel)
	for _, seg := range segments {
		wg.Add(1)
		go func(seg Segment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			path, err := d.synthesizeSegment(ctx, runDir, stamp, speaker, seg)
			if err != nil {
				d.logger.Warn("segment dropped",
					slog.String("run_id", runID),
					slog.Int("segment", seg.Index),
					slog.String("voice", seg.Voice),
					slog.String("error", err.Error()))
				return
			}
			results[seg.Index] = &Clip{Index: seg.Index, Path: path, Kind: seg.Kind, Voice: seg.Voice}
		}(seg)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return runDir, nil, err
	}

	clips := make([]Clip, 0, len(results))
	for _, c := range results {
		if c != nil {
			clips = append(clips, *c)
		}
	}
	return runDir, clips, nil
}

func (d *Dispatcher) synthesizeSegment(ctx context.Context, runDir, stamp, speaker string, seg Segment) (string, error) {
	raw, err := d.synth.Synthesize(ctx, SynthRequest{Text: seg.Text, Voice: seg.Voice})
	if err != nil {
		return "", err
	}

	normalized, err := NormalizePCM16(raw)
	if err != nil {
		return "", fmt.Errorf("normalize segment audio: %w", err)
	}

	role := speaker
	if seg.Kind == Narrated {
		role = "narrator"
	}
	name := fmt.Sprintf("%s_%s_%s_%03d.wav", stamp, sanitizeVoice(role), sanitizeVoice(seg.Voice), seg.Index)
	path := filepath.Join(runDir, name)
	if err := os.WriteFile(path, normalized, 0o644); err != nil {
		return "", fmt.Errorf("write clip: %w", err)
	}
	return path, nil
}

// sanitizeVoice strips path separators and the wav suffix so a voice
// identity is safe inside a filename.
func sanitizeVoice(voice string) string {
	base := filepath.Base(voice)
	base = strings.TrimSuffix(base, ".wav")
	base = strings.ReplaceAll(base, " ", "-")
	if base == "" || base == "." {
		return "voice"
	}
	return base
}
