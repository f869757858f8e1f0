package voiceline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func writeClipFile(t *testing.T, dir, name string, samples []int, format ClipFormat) Clip {
	t.Helper()
	raw, err := encodePCM16(samples, format)
	if err != nil {
		t.Fatalf("encode clip: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return Clip{Path: path}
}

func decodeSamples(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	return buf.Data
}

func ramp(n, start int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func TestAssembleZeroClips(t *testing.T) {
	a := NewAssembler(time.Second, discardLogger())
	out := filepath.Join(t.TempDir(), "out.wav")

	artifact, err := a.Assemble(nil, out)
	if err != nil {
		t.Fatalf("zero clips is a normal outcome: %v", err)
	}
	if artifact != "" {
		t.Fatalf("expected no artifact, got %q", artifact)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("no file may be written for zero clips")
	}
}

func TestAssembleSingleClipIsPureCopy(t *testing.T) {
	dir := t.TempDir()
	format := ClipFormat{Channels: 1, SampleRate: 22050}
	clip := writeClipFile(t, dir, "only.wav", ramp(500, 1), format)

	a := NewAssembler(time.Second, discardLogger())
	out := filepath.Join(dir, "out.wav")

	artifact, err := a.Assemble([]Clip{clip}, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	src, _ := os.ReadFile(clip.Path)
	dst, _ := os.ReadFile(artifact)
	if !bytes.Equal(src, dst) {
		t.Fatal("single clip must be copied byte for byte")
	}
}

func TestAssembleConcatWithSilence(t *testing.T) {
	dir := t.TempDir()
	format := ClipFormat{Channels: 1, SampleRate: 1000}
	a := writeClipFile(t, dir, "a.wav", ramp(100, 1), format)
	b := writeClipFile(t, dir, "b.wav", ramp(200, 1000), format)

	asm := NewAssembler(time.Second, discardLogger())
	out := filepath.Join(dir, "out.wav")
	artifact, err := asm.Assemble([]Clip{a, b}, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	got := decodeSamples(t, artifact)
	// 100 samples + 1000 samples of silence (1s at 1kHz mono) + 200 samples.
	if len(got) != 100+1000+200 {
		t.Fatalf("artifact has %d samples, want %d", len(got), 1300)
	}
	for i := 100; i < 1100; i++ {
		if got[i] != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, got[i])
		}
	}
	if got[0] != 1 || got[1100] != 1000 {
		t.Fatalf("clip data misplaced: first=%d, after gap=%d", got[0], got[1100])
	}
}

func TestAssembleIsAssociative(t *testing.T) {
	dir := t.TempDir()
	format := ClipFormat{Channels: 1, SampleRate: 1000}
	a := writeClipFile(t, dir, "a.wav", ramp(50, 1), format)
	b := writeClipFile(t, dir, "b.wav", ramp(60, 100), format)
	c := writeClipFile(t, dir, "c.wav", ramp(70, 200), format)

	asm := NewAssembler(100*time.Millisecond, discardLogger())

	flat := filepath.Join(dir, "flat.wav")
	if _, err := asm.Assemble([]Clip{a, b, c}, flat); err != nil {
		t.Fatalf("flat assemble: %v", err)
	}

	ab := filepath.Join(dir, "ab.wav")
	if _, err := asm.Assemble([]Clip{a, b}, ab); err != nil {
		t.Fatalf("prefix assemble: %v", err)
	}
	nested := filepath.Join(dir, "nested.wav")
	if _, err := asm.Assemble([]Clip{{Path: ab}, c}, nested); err != nil {
		t.Fatalf("nested assemble: %v", err)
	}

	if !reflect.DeepEqual(decodeSamples(t, flat), decodeSamples(t, nested)) {
		t.Fatal("concatenation order of operations changed the audio")
	}
}

func TestAssembleFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	a := writeClipFile(t, dir, "a.wav", ramp(100, 1), ClipFormat{Channels: 1, SampleRate: 22050})
	b := writeClipFile(t, dir, "b.wav", ramp(100, 1), ClipFormat{Channels: 1, SampleRate: 44100})

	asm := NewAssembler(time.Second, discardLogger())
	out := filepath.Join(dir, "out.wav")

	_, err := asm.Assemble([]Clip{a, b}, out)
	var mismatch *FormatMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *FormatMismatchError, got %v", err)
	}
	if mismatch.Want.SampleRate != 22050 || mismatch.Got.SampleRate != 44100 {
		t.Fatalf("mismatch fields = %+v", mismatch)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("nothing may be written on format mismatch")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run-1")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "clip.wav"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	asm := NewAssembler(time.Second, discardLogger())
	asm.Cleanup(runDir)
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Fatal("run dir should be gone")
	}
	// Calling again on a gone directory must be harmless.
	asm.Cleanup(runDir)
	asm.Cleanup("")
}
