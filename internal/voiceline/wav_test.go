package voiceline

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

// buildFloat32WAV hand-assembles a minimal IEEE-float wav payload.
func buildFloat32WAV(t *testing.T, sampleRate, channels int, samples []float32) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range samples {
		if err := binary.Write(&data, binary.LittleEndian, s); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}

	var buf bytes.Buffer
	dataLen := data.Len()
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatFloat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*4))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*4))
	binary.Write(&buf, binary.LittleEndian, uint16(32))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func TestNormalizePCM16Passthrough(t *testing.T) {
	raw, err := encodePCM16([]int{0, 1000, -1000, 32767}, ClipFormat{Channels: 1, SampleRate: 22050})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := NormalizePCM16(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("16-bit pcm input must pass through unchanged")
	}
}

func TestNormalizePCM16FromFloat32(t *testing.T) {
	raw := buildFloat32WAV(t, 22050, 1, []float32{0, 0.5, -0.5, 1.0, -1.0, 1.5})
	got, err := NormalizePCM16(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	d := wav.NewDecoder(bytes.NewReader(got))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	if d.BitDepth != 16 || int(d.WavAudioFormat) != wavFormatPCM {
		t.Fatalf("output is %dbit/fmt%d, want 16bit pcm", d.BitDepth, d.WavAudioFormat)
	}
	if d.SampleRate != 22050 || d.NumChans != 1 {
		t.Fatalf("rate/channels not preserved: %d/%d", d.SampleRate, d.NumChans)
	}

	want := []int{0, 16383, -16383, math.MaxInt16, math.MinInt16 + 1, math.MaxInt16}
	if len(buf.Data) != len(want) {
		t.Fatalf("got %d samples, want %d", len(buf.Data), len(want))
	}
	for i, w := range want {
		if diff := buf.Data[i] - w; diff > 1 || diff < -1 {
			t.Fatalf("sample %d = %d, want ~%d", i, buf.Data[i], w)
		}
	}
}

func TestNormalizePCM16RejectsGarbage(t *testing.T) {
	if _, err := NormalizePCM16([]byte("not audio at all")); err == nil {
		t.Fatal("expected error for non-wav payload")
	}
}

func TestProbeFormat(t *testing.T) {
	raw, err := encodePCM16(make([]int, 441), ClipFormat{Channels: 1, SampleRate: 44100})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	got, err := probeFormat(path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	want := ClipFormat{Channels: 1, BitDepth: 16, SampleRate: 44100, AudioFormat: wavFormatPCM}
	if got != want {
		t.Fatalf("probe = %v, want %v", got, want)
	}
}

func TestCastToInt16Widths(t *testing.T) {
	got, err := castToInt16([]int{0, 128, 255}, 8)
	if err != nil {
		t.Fatalf("8-bit cast: %v", err)
	}
	want := []int{-32768, 0, 32512}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("8-bit sample %d = %d, want %d", i, got[i], want[i])
		}
	}

	if _, err := castToInt16([]int{1}, 12); err == nil {
		t.Fatal("expected error for unsupported width")
	}
}
