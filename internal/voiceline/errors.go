package voiceline

import (
	"errors"
	"fmt"
)

// ErrUnavailable signals that no ready synthesis worker could be found
// after exhausting retries. Callers treat it as a normal, recoverable
// outcome: the voice line degrades to no audio.
var ErrUnavailable = errors.New("no ready synthesis worker available")

// SynthesisError is the structured failure for one segment's remote
// synthesis call. It is a value the dispatcher logs and drops; it never
// aborts a run.
type SynthesisError struct {
	Voice  string
	Status int
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for voice %q: status %d", e.Voice, e.Status)
}

// FormatMismatchError is raised when clips entering assembly disagree
// on format parameters. It fails the whole run; nothing is written.
type FormatMismatchError struct {
	Path string
	Want ClipFormat
	Got  ClipFormat
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("clip %s has format %s, want %s", e.Path, e.Got, e.Want)
}
