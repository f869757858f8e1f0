package voiceline

import (
	"context"
	"time"
)

// mockSynth produces silent clips. Used in dev deployments without a
// worker fleet and throughout the tests.
type mockSynth struct {
	sampleRate int
	channels   int
	duration   time.Duration
}

func NewMockSynth(sampleRate, channels int, duration time.Duration) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels, duration: duration}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frames := int(float64(m.sampleRate) * m.duration.Seconds())
	samples := make([]int, frames*m.channels)
	return encodePCM16(samples, ClipFormat{Channels: m.channels, SampleRate: m.sampleRate})
}
