package voiceline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ClipFormat is the set of parameters every clip entering assembly
// must agree on.
type ClipFormat struct {
	Channels    int
	BitDepth    int
	SampleRate  int
	AudioFormat int // 1 = PCM, 3 = IEEE float
}

func (f ClipFormat) String() string {
	return fmt.Sprintf("%dch/%dbit/%dHz/fmt%d", f.Channels, f.BitDepth, f.SampleRate, f.AudioFormat)
}

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// probeFormat reads a clip's header without decoding its samples.
func probeFormat(path string) (ClipFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return ClipFormat{}, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return ClipFormat{}, fmt.Errorf("read clip header %s: %w", path, err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return ClipFormat{}, fmt.Errorf("clip %s is not a wav file", path)
	}
	return ClipFormat{
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		SampleRate:  int(d.SampleRate),
		AudioFormat: int(d.WavAudioFormat),
	}, nil
}

// readClip decodes a clip's full sample buffer.
func readClip(path string) (*audio.IntBuffer, ClipFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ClipFormat{}, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, ClipFormat{}, fmt.Errorf("decode clip %s: %w", path, err)
	}
	format := ClipFormat{
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		SampleRate:  int(d.SampleRate),
		AudioFormat: int(d.WavAudioFormat),
	}
	return buf, format, nil
}

// NormalizePCM16 canonicalizes a synthesized wav payload to signed
// 16-bit PCM. Floating-point samples are scaled by the int16 maximum
// and truncated, other integer widths are cast, and 16-bit data passes
// through unchanged. Channel count and frame rate are preserved as-is
// and must be checked separately at assembly time.
func NormalizePCM16(raw []byte) ([]byte, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return nil, errors.New("audio payload is not a wav file")
	}

	format := ClipFormat{
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
	}

	switch {
	case int(d.WavAudioFormat) == wavFormatPCM && d.BitDepth == 16:
		return raw, nil
	case int(d.WavAudioFormat) == wavFormatFloat:
		if d.BitDepth != 32 {
			return nil, fmt.Errorf("unsupported float sample width %d", d.BitDepth)
		}
		samples, err := decodeFloat32Samples(d)
		if err != nil {
			return nil, err
		}
		return encodePCM16(samples, format)
	case int(d.WavAudioFormat) == wavFormatPCM:
		buf, err := d.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("decode pcm samples: %w", err)
		}
		samples, err := castToInt16(buf.Data, int(d.BitDepth))
		if err != nil {
			return nil, err
		}
		return encodePCM16(samples, format)
	default:
		return nil, fmt.Errorf("unsupported wav audio format %d", d.WavAudioFormat)
	}
}

// decodeFloat32Samples reads the raw data chunk of an IEEE-float wav
// and converts each sample to int16 by scaling and truncation.
func decodeFloat32Samples(d *wav.Decoder) ([]int, error) {
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locate data chunk: %w", err)
	}
	data, err := io.ReadAll(d.PCMChunk)
	if err != nil {
		return nil, fmt.Errorf("read data chunk: %w", err)
	}
	samples := make([]int, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		f := math.Float32frombits(binary.LittleEndian.Uint32(data[i : i+4]))
		v := float64(f) * math.MaxInt16
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		samples = append(samples, int(int16(v)))
	}
	return samples, nil
}

func castToInt16(data []int, bitDepth int) ([]int, error) {
	out := make([]int, len(data))
	switch bitDepth {
	case 8:
		// 8-bit wav samples are unsigned.
		for i, v := range data {
			out[i] = (v - 128) << 8
		}
	case 24:
		for i, v := range data {
			out[i] = v >> 8
		}
	case 32:
		for i, v := range data {
			out[i] = v >> 16
		}
	default:
		return nil, fmt.Errorf("unsupported pcm sample width %d", bitDepth)
	}
	return out, nil
}

func encodePCM16(samples []int, format ClipFormat) ([]byte, error) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	var ws bufferSeeker
	enc := wav.NewEncoder(&ws, format.SampleRate, 16, format.Channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode pcm16: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize pcm16: %w", err)
	}
	return ws.Bytes(), nil
}

// bufferSeeker is an in-memory io.WriteSeeker for the wav encoder,
// which patches chunk sizes by seeking back into the header.
type bufferSeeker struct {
	data []byte
	pos  int
}

func (b *bufferSeeker) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *bufferSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(abs)
	return abs, nil
}

func (b *bufferSeeker) Bytes() []byte {
	return b.data
}
