package protocol

import "time"

// VoiceLine is one independent line of a narrative event: the text a
// single speaker delivers, with an optional voice identity override.
type VoiceLine struct {
	Speaker string `json:"speaker"`
	Voice   string `json:"voice,omitempty"`
	Text    string `json:"text"`
}

// VoiceLineRequest asks the service to produce audio for every line of
// one narrative event. Lines are independent of each other.
type VoiceLineRequest struct {
	SessionID string      `json:"session_id"`
	EventID   string      `json:"event_id"`
	Lines     []VoiceLine `json:"lines"`
}

// LineResult reports the outcome for one line. Generated=false with an
// empty ArtifactPath is the explicit "no artifact" signal; consumers
// must render it gracefully rather than treat it as an error.
type LineResult struct {
	Speaker      string `json:"speaker"`
	RunID        string `json:"run_id"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ClipCount    int    `json:"clip_count"`
	SegmentCount int    `json:"segment_count"`
	Generated    bool   `json:"generated"`
	Error        string `json:"error,omitempty"`
}

// VoiceLineReady is published once every line of the event has been
// attempted, in the same order the lines were requested.
type VoiceLineReady struct {
	SessionID string       `json:"session_id"`
	EventID   string       `json:"event_id"`
	Lines     []LineResult `json:"lines"`
	Timestamp time.Time    `json:"timestamp"`
}

const (
	SubjectVoiceLineRequest = "voice.line.request"
	SubjectVoiceLineReady   = "voice.line.ready"
)
