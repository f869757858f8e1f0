package voiceline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fablewright/fablevoice/internal/config"
)

func pipelineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Synth.Mode = "mock"
	cfg.Synth.MaxParallel = 4
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Output.TempDir = filepath.Join(t.TempDir(), "tmp")
	return cfg
}

func TestGenerateFullLine(t *testing.T) {
	cfg := pipelineConfig(t)
	p, err := NewPipeline(cfg, discardLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "elf", "elf.wav", "Welcome. *The door creaks.* Come in.")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.SegmentCount != 3 || result.ClipCount != 3 {
		t.Fatalf("counts = %d segments / %d clips, want 3/3", result.SegmentCount, result.ClipCount)
	}
	if result.Artifact == "" {
		t.Fatal("expected an artifact path")
	}
	if _, err := os.Stat(result.Artifact); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if format, err := probeFormat(result.Artifact); err != nil || format.BitDepth != 16 {
		t.Fatalf("artifact format = %v (%v)", format, err)
	}

	// The run-scoped temp directory is removed after assembly.
	runDir := filepath.Join(cfg.Output.TempDir, result.RunID)
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Fatal("run temp dir should be cleaned up")
	}
}

func TestGenerateEmptyText(t *testing.T) {
	p, err := NewPipeline(pipelineConfig(t), discardLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	result, err := p.Generate(context.Background(), "elf", "elf.wav", "   ")
	if err != nil {
		t.Fatalf("empty text must not error: %v", err)
	}
	if result.Artifact != "" || result.SegmentCount != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestGenerateBackendUnavailable(t *testing.T) {
	fleet := fleetServer(t, nil)

	cfg := pipelineConfig(t)
	cfg.Synth.Mode = "remote"
	cfg.Fleet.APIURL = fleet.URL
	cfg.Fleet.MaxRetries = 2
	cfg.Fleet.RetryDelayMS = 1

	p, err := NewPipeline(cfg, discardLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "elf", "elf.wav", "Hello there.")
	if err != nil {
		t.Fatalf("unavailable backend is not an error: %v", err)
	}
	if result.Artifact != "" {
		t.Fatalf("no artifact expected, got %q", result.Artifact)
	}
	if result.SegmentCount != 1 {
		t.Fatalf("segment count = %d, want 1", result.SegmentCount)
	}
}

func TestGeneratePartialSegmentFailure(t *testing.T) {
	cfg := pipelineConfig(t)
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		if strings.Contains(req.Text, "door") {
			return nil, &SynthesisError{Voice: req.Voice, Status: 500}
		}
		raw, err := encodePCM16(make([]int, 220), ClipFormat{Channels: 1, SampleRate: 22050})
		if err != nil {
			t.Errorf("encode: %v", err)
		}
		return raw, err
	})

	p, err := NewPipeline(cfg, discardLogger(), WithSynthesizer(synth))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "elf", "elf.wav", "Welcome. *The door creaks.* Come in.")
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}
	if result.SegmentCount != 3 || result.ClipCount != 2 {
		t.Fatalf("counts = %d segments / %d clips, want 3/2", result.SegmentCount, result.ClipCount)
	}
	if result.Artifact == "" {
		t.Fatal("surviving clips should still produce an artifact")
	}
}

func TestGenerateAllSegmentsFail(t *testing.T) {
	cfg := pipelineConfig(t)
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		return nil, &SynthesisError{Voice: req.Voice, Status: 503}
	})

	p, err := NewPipeline(cfg, discardLogger(), WithSynthesizer(synth))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "elf", "elf.wav", "One. *Two.* Three.")
	if err != nil {
		t.Fatalf("total segment failure degrades, not errors: %v", err)
	}
	if result.Artifact != "" || result.ClipCount != 0 {
		t.Fatalf("result = %+v, want no artifact", result)
	}
}

func TestGenerateUsesDefaultVoice(t *testing.T) {
	cfg := pipelineConfig(t)
	var seen string
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		seen = req.Voice
		return encodePCM16(make([]int, 220), ClipFormat{Channels: 1, SampleRate: 22050})
	})

	p, err := NewPipeline(cfg, discardLogger(), WithSynthesizer(synth))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if _, err := p.Generate(context.Background(), "elf", "", "Hello."); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if seen != cfg.Voice.DefaultVoice {
		t.Fatalf("voice = %q, want default %q", seen, cfg.Voice.DefaultVoice)
	}
}
