package voiceline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fablewright/fablevoice/internal/config"
)

// Result summarizes one voice line run. Artifact is empty when the run
// legitimately produced no audio.
type Result struct {
	RunID        string
	Artifact     string
	SegmentCount int
	ClipCount    int
}

// Pipeline runs the full voice line flow: segment the text, resolve a
// synthesis backend, dispatch segments, assemble the artifact, clean up.
type Pipeline struct {
	cfg       config.Config
	logger    *slog.Logger
	segmenter *Segmenter
	resolver  *Resolver
	assembler *Assembler
	metrics   *pipelineMetrics

	// synth, when set, bypasses backend resolution. Set for mock and
	// exec modes at construction, and by tests.
	synth Synthesizer
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithSynthesizer pins the pipeline to a fixed backend, skipping fleet
// resolution entirely.
func WithSynthesizer(s Synthesizer) Option {
	return func(p *Pipeline) { p.synth = s }
}

func NewPipeline(cfg config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	log := logger.With(slog.String("component", "voiceline-pipeline"))

	p := &Pipeline{
		cfg:       cfg,
		logger:    log,
		segmenter: NewSegmenter(cfg.Voice.NarratorVoice),
		assembler: NewAssembler(time.Duration(cfg.Voice.SilenceGapMS)*time.Millisecond, logger),
		metrics:   newPipelineMetrics(),
	}

	switch cfg.Synth.Mode {
	case "remote":
		p.resolver = NewResolver(cfg.Fleet, nil, logger)
	case "exec":
		synth, err := NewExecSynth(cfg.Synth.Command, cfg.Synth.Language)
		if err != nil {
			return nil, err
		}
		p.synth = synth
	case "mock":
		p.synth = NewMockSynth(22050, 1, 250*time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Synth.Mode)
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Output.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	return p, nil
}

// Generate produces one assembled voice line for the given speaker and
// text. An empty Result with a nil error means the line degraded to no
// audio: either the text yielded no segments, no backend was available,
// or every segment failed. Format disagreement between clips and any
// I/O fault on the final artifact are returned as errors.
func (p *Pipeline) Generate(ctx context.Context, speaker, voice, text string) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.With(slog.String("run_id", runID), slog.String("speaker", speaker))

	if voice == "" {
		voice = p.cfg.Voice.DefaultVoice
	}

	segments := p.segmenter.Segment(text, voice)
	if len(segments) == 0 {
		log.Info("text yielded no segments")
		p.metrics.recordRun(ctx, "empty", time.Since(start).Seconds())
		return Result{RunID: runID}, nil
	}

	synth, err := p.backend(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			log.Warn("synthesis unavailable, line degrades to no audio")
			p.metrics.recordRun(ctx, "unavailable", time.Since(start).Seconds())
			return Result{RunID: runID, SegmentCount: len(segments)}, nil
		}
		return Result{RunID: runID}, err
	}

	dispatcher := NewDispatcher(synth, p.cfg.Output.TempDir, p.cfg.Synth.MaxParallel, p.logger)
	runDir, clips, err := dispatcher.Dispatch(ctx, runID, speaker, segments)
	defer p.assembler.Cleanup(runDir)
	if err != nil {
		p.metrics.recordRun(ctx, "error", time.Since(start).Seconds())
		return Result{RunID: runID}, err
	}
	p.metrics.recordSegments(ctx, len(segments), len(clips))

	outPath := filepath.Join(p.cfg.Output.Dir, artifactName(speaker, voice))
	artifact, err := p.assembler.Assemble(clips, outPath)
	if err != nil {
		p.metrics.recordRun(ctx, "error", time.Since(start).Seconds())
		return Result{RunID: runID}, err
	}

	outcome := "ok"
	if artifact == "" {
		outcome = "no_artifact"
	}
	p.metrics.recordRun(ctx, outcome, time.Since(start).Seconds())

	log.Info("voice line run complete",
		slog.Int("segments", len(segments)),
		slog.Int("clips", len(clips)),
		slog.String("artifact", artifact),
		slog.Duration("elapsed", time.Since(start)))

	return Result{
		RunID:        runID,
		Artifact:     artifact,
		SegmentCount: len(segments),
		ClipCount:    len(clips),
	}, nil
}

// backend yields the synthesizer for this run. In remote mode every run
// re-resolves the fleet; exhausting the retry budget maps to
// ErrUnavailable, while a dead context stays a context error.
func (p *Pipeline) backend(ctx context.Context) (Synthesizer, error) {
	if p.synth != nil {
		return p.synth, nil
	}
	base, ok := p.resolver.WaitUntilReady(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrUnavailable
	}
	return NewRemoteSynthesizer(base, p.cfg.Synth, nil), nil
}

func artifactName(speaker, voice string) string {
	return fmt.Sprintf("%s_%s.wav", sanitizeVoice(speaker), sanitizeVoice(voice))
}
