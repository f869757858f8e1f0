package voiceline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fablewright/fablevoice/internal/config"
)

// workerDescriptor is one entry from the fleet descriptor API.
type workerDescriptor struct {
	ID            string `json:"id"`
	DesiredStatus string `json:"desiredStatus"`
}

type fleetResponse struct {
	Workers []workerDescriptor `json:"workers"`
}

// ttsSettings is the payload posted to the worker's settings endpoint.
// The call doubles as the readiness probe: a worker that accepts it is
// ready to synthesize.
type ttsSettings struct {
	StreamChunkSize     int     `json:"stream_chunk_size"`
	Temperature         float64 `json:"temperature"`
	Speed               float64 `json:"speed"`
	LengthPenalty       float64 `json:"length_penalty"`
	RepetitionPenalty   float64 `json:"repetition_penalty"`
	TopK                int     `json:"top_k"`
	TopP                float64 `json:"top_p"`
	EnableTextSplitting bool    `json:"enable_text_splitting"`
}

func defaultTTSSettings() ttsSettings {
	return ttsSettings{
		StreamChunkSize:     100,
		Temperature:         0.75,
		Speed:               1.0,
		LengthPenalty:       1.0,
		RepetitionPenalty:   5.0,
		TopK:                50,
		TopP:                0.85,
		EnableTextSplitting: true,
	}
}

var (
	errNoWorker       = errors.New("no running synthesis worker in fleet")
	errWorkerNotReady = errors.New("synthesis worker not ready")
)

// Resolver discovers a remote synthesis worker and determines
// readiness. Every call re-queries the fleet; no state is cached
// across resolution attempts.
type Resolver struct {
	cfg    config.FleetConfig
	client *http.Client
	logger *slog.Logger

	// baseURL derives a worker base URL from its id. Overridable in
	// tests where the proxy naming scheme cannot resolve.
	baseURL func(id string) string
}

func NewResolver(cfg config.FleetConfig, client *http.Client, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.ProbeTimeoutMS) * time.Millisecond}
	}
	r := &Resolver{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "endpoint-resolver")),
	}
	r.baseURL = func(id string) string {
		return fmt.Sprintf("https://%s-%d.proxy.%s", id, cfg.ProxyPort, cfg.ProxyDomain)
	}
	return r
}

// ResolveBaseURL queries the fleet descriptor API and derives the base
// URL of the first worker whose desired status is running. A false
// return means no eligible worker, not a fault.
func (r *Resolver) ResolveBaseURL(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIURL, nil)
	if err != nil {
		r.logger.Warn("fleet query failed", slog.String("error", err.Error()))
		return "", false
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("fleet query failed", slog.String("error", err.Error()))
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("fleet query returned non-OK status", slog.Int("status", resp.StatusCode))
		return "", false
	}

	var fleet fleetResponse
	if err := json.NewDecoder(resp.Body).Decode(&fleet); err != nil {
		r.logger.Warn("fleet response decode failed", slog.String("error", err.Error()))
		return "", false
	}

	for _, w := range fleet.Workers {
		if w.DesiredStatus == "running" && w.ID != "" {
			return r.baseURL(w.ID), true
		}
	}
	return "", false
}

// Probe posts the synthesis settings to the worker. A non-2xx response
// or a transport failure means the worker is not ready yet.
func (r *Resolver) Probe(ctx context.Context, base string) bool {
	body, err := json.Marshal(defaultTTSSettings())
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/set_tts_settings", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("readiness probe failed", slog.String("base_url", base), slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitUntilReady retries the full discovery+probe sequence with a
// fixed delay until a ready worker is found, the retry budget is
// exhausted, or ctx is done. Exhaustion returns false; it is a normal
// outcome, not an error. Context cancellation is visible to the caller
// through ctx.Err().
func (r *Resolver) WaitUntilReady(ctx context.Context) (string, bool) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		base, ok := r.ResolveBaseURL(ctx)
		if !ok {
			r.logger.Info("no running worker found", slog.Int("attempt", attempt))
			return "", errNoWorker
		}
		if !r.Probe(ctx, base) {
			r.logger.Info("worker not ready yet", slog.String("base_url", base), slog.Int("attempt", attempt))
			return "", errWorkerNotReady
		}
		return base, nil
	}

	delay := time.Duration(r.cfg.RetryDelayMS) * time.Millisecond
	base, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries)),
	)
	if err != nil {
		return "", false
	}
	r.logger.Info("synthesis worker ready", slog.String("base_url", base))
	return base, true
}
