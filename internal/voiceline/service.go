package voiceline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fablewright/fablevoice/internal/bus"
	"github.com/fablewright/fablevoice/internal/eventstore"
	"github.com/fablewright/fablevoice/internal/protocol"
)

// Service subscribes to voice-line requests on the bus, runs the
// pipeline for every line, and publishes the aggregated results.
type Service struct {
	pipeline *Pipeline
	bus      *bus.Client
	store    *eventstore.Store
	logger   *slog.Logger

	sub *nats.Subscription
	wg  sync.WaitGroup
}

func NewService(pipeline *Pipeline, busClient *bus.Client, store *eventstore.Store, logger *slog.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		bus:      busClient,
		store:    store,
		logger:   logger.With(slog.String("component", "voiceline-service")),
	}
}

// Start subscribes to the request subject. Each request is handled on
// its own goroutine; Stop waits for in-flight requests to finish.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectVoiceLineRequest, func(msg *nats.Msg) {
		var req protocol.VoiceLineRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("dropping malformed voice line request", slog.String("error", err.Error()))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleRequest(ctx, req)
		}()
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for voice line requests", slog.String("subject", protocol.SubjectVoiceLineRequest))
	return nil
}

// Stop unsubscribes and drains in-flight request handlers.
func (s *Service) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.wg.Wait()
}

// handleRequest runs every line of the event concurrently and publishes
// one VoiceLineReady carrying results in request order. A line that
// errors is reported in its result slot; it never suppresses the other
// lines.
func (s *Service) handleRequest(ctx context.Context, req protocol.VoiceLineRequest) {
	log := s.logger.With(
		slog.String("session_id", req.SessionID),
		slog.String("event_id", req.EventID))
	log.Info("voice line request received", slog.Int("lines", len(req.Lines)))

	results := make([]protocol.LineResult, len(req.Lines))

	var wg sync.WaitGroup
	for i, line := range req.Lines {
		wg.Add(1)
		go func(i int, line protocol.VoiceLine) {
			defer wg.Done()
			results[i] = s.runLine(ctx, req.SessionID, line)
		}(i, line)
	}
	wg.Wait()

	ready := protocol.VoiceLineReady{
		SessionID: req.SessionID,
		EventID:   req.EventID,
		Lines:     results,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(ready)
	if err != nil {
		log.Error("marshal voice line result failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectVoiceLineReady, payload); err != nil {
		log.Error("publish voice line result failed", slog.String("error", err.Error()))
		return
	}
	log.Info("voice line result published")
}

func (s *Service) runLine(ctx context.Context, sessionID string, line protocol.VoiceLine) protocol.LineResult {
	result, err := s.pipeline.Generate(ctx, line.Speaker, line.Voice, line.Text)

	if result.RunID != "" {
		s.recordRun(ctx, sessionID, line, result, err)
	}

	lineResult := protocol.LineResult{
		Speaker:      line.Speaker,
		RunID:        result.RunID,
		ArtifactPath: result.Artifact,
		ClipCount:    result.ClipCount,
		SegmentCount: result.SegmentCount,
		Generated:    result.Artifact != "",
	}
	if err != nil {
		lineResult.Error = err.Error()
		s.logger.Error("voice line failed",
			slog.String("speaker", line.Speaker),
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
		var mismatch *FormatMismatchError
		if errors.As(err, &mismatch) {
			s.logger.Error("clip format mismatch",
				slog.String("clip", mismatch.Path),
				slog.String("want", mismatch.Want.String()),
				slog.String("got", mismatch.Got.String()))
		}
	}
	return lineResult
}

// recordRun persists the run and its outcome to the timeline store.
// Store failures are logged and swallowed: run accounting never changes
// a line's outcome.
func (s *Service) recordRun(ctx context.Context, sessionID string, line protocol.VoiceLine, result Result, runErr error) {
	if s.store == nil {
		return
	}
	run := eventstore.Run{
		RunID:     result.RunID,
		SessionID: sessionID,
		Speaker:   line.Speaker,
		Voice:     line.Voice,
	}
	if err := s.store.BeginRun(ctx, run); err != nil {
		s.logger.Warn("run accounting failed", slog.String("run_id", result.RunID), slog.String("error", err.Error()))
		return
	}

	eventType := "artifact_ready"
	switch {
	case runErr != nil:
		eventType = "run_failed"
	case result.Artifact == "":
		eventType = "no_artifact"
	}
	payload, _ := json.Marshal(map[string]any{
		"artifact":      result.Artifact,
		"segment_count": result.SegmentCount,
		"clip_count":    result.ClipCount,
		"error":         errString(runErr),
	})
	evt := eventstore.Event{RunID: result.RunID, Type: eventType, Payload: payload}
	if err := s.store.AppendEvent(ctx, evt); err != nil {
		s.logger.Warn("run event append failed", slog.String("run_id", result.RunID), slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
