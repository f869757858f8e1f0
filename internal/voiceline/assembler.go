package voiceline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Assembler concatenates normalized clips into one artifact, with a
// fixed silence gap between consecutive clips.
type Assembler struct {
	logger     *slog.Logger
	silenceGap time.Duration
}

func NewAssembler(silenceGap time.Duration, logger *slog.Logger) *Assembler {
	return &Assembler{
		logger:     logger.With(slog.String("component", "audio-assembler")),
		silenceGap: silenceGap,
	}
}

// Assemble writes the concatenation of clips to outPath and returns the
// artifact path. Zero clips is a normal no-artifact outcome: nothing is
// written and both return values are nil. A single clip is copied
// byte-for-byte without decoding. Two or more clips must agree on
// channel count, bit depth, sample rate, and encoding; a disagreement
// fails the whole run before anything is written.
func (a *Assembler) Assemble(clips []Clip, outPath string) (string, error) {
	switch len(clips) {
	case 0:
		a.logger.Info("no clips to assemble, skipping artifact")
		return "", nil
	case 1:
		if err := copyFile(clips[0].Path, outPath); err != nil {
			return "", fmt.Errorf("copy single clip: %w", err)
		}
		return outPath, nil
	}

	want, err := probeFormat(clips[0].Path)
	if err != nil {
		return "", err
	}
	for _, c := range clips[1:] {
		got, err := probeFormat(c.Path)
		if err != nil {
			return "", err
		}
		if got != want {
			return "", &FormatMismatchError{Path: c.Path, Want: want, Got: got}
		}
	}

	if err := a.writeConcat(clips, want, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

func (a *Assembler) writeConcat(clips []Clip, format ClipFormat, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, format.SampleRate, format.BitDepth, format.Channels, format.AudioFormat)

	gapFrames := int(float64(format.SampleRate) * a.silenceGap.Seconds())
	silence := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           make([]int, gapFrames*format.Channels),
		SourceBitDepth: format.BitDepth,
	}

	for i, c := range clips {
		if i > 0 && gapFrames > 0 {
			if err := enc.Write(silence); err != nil {
				return fmt.Errorf("write silence gap: %w", err)
			}
		}
		buf, _, err := readClip(c.Path)
		if err != nil {
			return err
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("write clip %s: %w", c.Path, err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

// Cleanup removes the run's temp directory and every clip inside it.
// Safe to call more than once; removal failures are logged and
// swallowed so cleanup never changes a run's outcome.
func (a *Assembler) Cleanup(runDir string) {
	if runDir == "" {
		return
	}
	if err := os.RemoveAll(runDir); err != nil {
		a.logger.Warn("temp cleanup failed", slog.String("dir", runDir), slog.String("error", err.Error()))
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
