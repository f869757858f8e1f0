package voiceline

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// synthFunc adapts a function to the Synthesizer interface for tests.
type synthFunc func(ctx context.Context, req SynthRequest) ([]byte, error)

func (f synthFunc) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	return f(ctx, req)
}

func pcm16Clip(t *testing.T, samples int) []byte {
	t.Helper()
	raw, err := encodePCM16(make([]int, samples), ClipFormat{Channels: 1, SampleRate: 22050})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func testSegments(s *Segmenter, text, voice string) []Segment {
	return s.Segment(text, voice)
}

func TestDispatchWritesClipsInOrder(t *testing.T) {
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		return pcm16Clip(t, 100), nil
	})
	d := NewDispatcher(synth, t.TempDir(), 4, discardLogger())

	segments := testSegments(NewSegmenter("narrator.wav"), "A *b* c *d* e", "elf.wav")
	runDir, clips, err := d.Dispatch(context.Background(), "run-1", "elf", segments)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(clips) != len(segments) {
		t.Fatalf("got %d clips, want %d", len(clips), len(segments))
	}
	for i, c := range clips {
		if c.Index != i {
			t.Fatalf("clip %d carries index %d", i, c.Index)
		}
		if !strings.HasPrefix(c.Path, runDir) {
			t.Fatalf("clip %s not inside run dir %s", c.Path, runDir)
		}
	}
	// Narrated clips carry the narrator role in their filename.
	if !strings.Contains(clips[1].Path, "_narrator_") {
		t.Fatalf("narrated clip filename missing narrator role: %s", clips[1].Path)
	}
}

func TestDispatchDropsFailedSegments(t *testing.T) {
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		if strings.Contains(req.Text, "fail") {
			return nil, &SynthesisError{Voice: req.Voice, Status: 500}
		}
		return pcm16Clip(t, 100), nil
	})
	d := NewDispatcher(synth, t.TempDir(), 2, discardLogger())

	segments := testSegments(NewSegmenter("narrator.wav"), "keep *fail here* keep too", "elf.wav")
	_, clips, err := d.Dispatch(context.Background(), "run-2", "elf", segments)
	if err != nil {
		t.Fatalf("partial failure must not fail the dispatch: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	// Survivors keep relative source order.
	if clips[0].Index >= clips[1].Index {
		t.Fatalf("clip order broken: %d then %d", clips[0].Index, clips[1].Index)
	}
}

func TestDispatchAllSegmentsFail(t *testing.T) {
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		return nil, fmt.Errorf("backend down")
	})
	d := NewDispatcher(synth, t.TempDir(), 1, discardLogger())

	segments := testSegments(NewSegmenter("narrator.wav"), "a *b* c", "elf.wav")
	_, clips, err := d.Dispatch(context.Background(), "run-3", "elf", segments)
	if err != nil {
		t.Fatalf("total segment failure is still not a dispatch error: %v", err)
	}
	if len(clips) != 0 {
		t.Fatalf("expected no clips, got %d", len(clips))
	}
}

func TestDispatchReportsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		return pcm16Clip(t, 100), nil
	})
	d := NewDispatcher(synth, t.TempDir(), 1, discardLogger())

	segments := testSegments(NewSegmenter("narrator.wav"), "hello", "elf.wav")
	_, _, err := d.Dispatch(ctx, "run-4", "elf", segments)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestDispatchRejectsUndecodablePayload(t *testing.T) {
	synth := synthFunc(func(ctx context.Context, req SynthRequest) ([]byte, error) {
		return []byte("not audio"), nil
	})
	d := NewDispatcher(synth, t.TempDir(), 1, discardLogger())

	segments := testSegments(NewSegmenter("narrator.wav"), "hello", "elf.wav")
	_, clips, err := d.Dispatch(context.Background(), "run-5", "elf", segments)
	if err != nil {
		t.Fatalf("undecodable payload drops the segment, not the run: %v", err)
	}
	if len(clips) != 0 {
		t.Fatalf("expected the segment to be dropped, got %d clips", len(clips))
	}
}

func TestSanitizeVoice(t *testing.T) {
	cases := map[string]string{
		"elf.wav":          "elf",
		"voices/elf.wav":   "elf",
		"deep elf.wav":     "deep-elf",
		"../../etc/passwd": "passwd",
		"":                 "voice",
	}
	for in, want := range cases {
		if got := sanitizeVoice(in); got != want {
			t.Fatalf("sanitizeVoice(%q) = %q, want %q", in, got, want)
		}
	}
}
