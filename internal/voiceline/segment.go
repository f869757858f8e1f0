package voiceline

import "strings"

// Kind classifies a segment's voice: ordinary character dialogue or
// narrator-voiced emphasis.
type Kind int

const (
	Spoken Kind = iota
	Narrated
)

func (k Kind) String() string {
	if k == Narrated {
		return "narrated"
	}
	return "spoken"
}

// Segment is a contiguous span of narrative text assigned to exactly
// one voice. Immutable once produced; ordering is significant.
type Segment struct {
	Index int
	Text  string
	Kind  Kind
	Voice string
}

// narrationDelimiter brackets narrator-voiced spans in narrative text.
const narrationDelimiter = "*"

// Segmenter splits narrative text into voice-tagged segments.
type Segmenter struct {
	NarratorVoice string
}

func NewSegmenter(narratorVoice string) *Segmenter {
	return &Segmenter{NarratorVoice: narratorVoice}
}

// Segment splits text on the narration delimiter pair. Delimited spans
// become Narrated segments carrying the narrator voice; everything
// else becomes Spoken segments carrying the supplied character voice.
// The function is pure: identical input always yields an identical
// sequence, and source order is preserved exactly.
func (s *Segmenter) Segment(text, voice string) []Segment {
	var segments []Segment
	for _, part := range splitNarration(text) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, narrationDelimiter) && strings.HasSuffix(trimmed, narrationDelimiter) {
			inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, narrationDelimiter), narrationDelimiter))
			if inner == "" {
				continue
			}
			segments = append(segments, Segment{
				Index: len(segments),
				Text:  inner,
				Kind:  Narrated,
				Voice: s.NarratorVoice,
			})
			continue
		}
		segments = append(segments, Segment{
			Index: len(segments),
			Text:  trimmed,
			Kind:  Spoken,
			Voice: voice,
		})
	}
	return segments
}

// splitNarration cuts text into alternating plain and delimited
// elements, keeping each delimited span (delimiters included) as its
// own element. An unmatched trailing delimiter is left in place.
func splitNarration(text string) []string {
	var parts []string
	rest := text
	for {
		i := strings.Index(rest, narrationDelimiter)
		if i < 0 {
			parts = append(parts, rest)
			break
		}
		j := strings.Index(rest[i+1:], narrationDelimiter)
		if j < 0 {
			parts = append(parts, rest)
			break
		}
		parts = append(parts, rest[:i], rest[i:i+j+2])
		rest = rest[i+j+2:]
	}
	return parts
}
