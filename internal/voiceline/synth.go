package voiceline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fablewright/fablevoice/internal/config"
)

// SynthRequest carries one segment's text and voice identity to a
// synthesizer backend.
type SynthRequest struct {
	Text  string
	Voice string
}

// Synthesizer produces one raw audio payload per request. Non-fatal
// synthesis failures are returned as *SynthesisError values; the
// caller decides severity.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}

// RemoteSynthesizer calls the synthesis HTTP API on a resolved worker
// base URL.
type RemoteSynthesizer struct {
	baseURL  string
	language string
	accent   string
	client   *http.Client
}

func NewRemoteSynthesizer(baseURL string, cfg config.SynthConfig, client *http.Client) *RemoteSynthesizer {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond}
	}
	return &RemoteSynthesizer{
		baseURL:  baseURL,
		language: cfg.Language,
		accent:   cfg.Accent,
		client:   client,
	}
}

type synthPayload struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
	Accent     string `json:"accent"`
}

// Synthesize issues one synthesis call. HTTP 200 yields the raw audio
// payload; any other status yields a *SynthesisError carrying the
// voice identity and status code.
func (s *RemoteSynthesizer) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	payload := synthPayload{
		Text:       req.Text,
		SpeakerWav: req.Voice,
		Language:   s.language,
		Accent:     s.accent,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/tts_to_audio/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &SynthesisError{Voice: req.Voice, Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
