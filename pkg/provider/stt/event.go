package stt

import (
	"errors"
	"fmt"
)

// EventKind discriminates the payload of an [Event].
type EventKind int

const (
	// EventResult carries a recognition [Result].
	EventResult EventKind = iota

	// EventError carries an [ErrorCode] reported by the engine.
	EventError

	// EventEnd signals that the engine stopped listening on its own.
	EventEnd
)

// String returns the human-readable name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Alternative is one ranked transcription of an utterance.
type Alternative struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the engine's confidence (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64
}

// Result is one recognition event. Alternatives are rank-ordered; the first
// entry is the primary transcript.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Primary returns the text of the top-ranked alternative, or "" when the
// result carries none.
func (r Result) Primary() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Text
}

// Event is a single item on a [SessionHandle] event stream.
type Event struct {
	Kind   EventKind
	Result Result

	// Code and Message are set for EventError.
	Code    ErrorCode
	Message string
}

// ResultEvent is shorthand for an EventResult carrying the given alternatives.
func ResultEvent(isFinal bool, texts ...string) Event {
	alts := make([]Alternative, len(texts))
	for i, t := range texts {
		alts[i] = Alternative{Text: t}
	}
	return Event{Kind: EventResult, Result: Result{Alternatives: alts, IsFinal: isFinal}}
}

// ErrorEvent is shorthand for an EventError with the given code.
func ErrorEvent(code ErrorCode, msg string) Event {
	return Event{Kind: EventError, Code: code, Message: msg}
}

// EndEvent is shorthand for an EventEnd.
func EndEvent() Event {
	return Event{Kind: EventEnd}
}

// ErrorCode identifies the class of failure reported by a recognition engine.
// Providers map their native error representation onto these codes; codes
// outside the well-known set are treated as [ClassUnknown].
type ErrorCode string

const (
	CodeNoSpeech             ErrorCode = "no-speech"
	CodeAudioCapture         ErrorCode = "audio-capture"
	CodeNotAllowed           ErrorCode = "not-allowed"
	CodeNetwork              ErrorCode = "network"
	CodeLanguageNotSupported ErrorCode = "language-not-supported"
	CodeAborted              ErrorCode = "aborted"
)

// ErrorClass groups error codes by the recovery action they require.
type ErrorClass int

const (
	// ClassUnknown covers any code without a dedicated policy.
	ClassUnknown ErrorClass = iota
	ClassNoSpeech
	// ClassFatal errors mean the audio input is unusable (permission or hardware).
	ClassFatal
	ClassNetwork
	ClassLanguage
	ClassAborted
)

// String returns the human-readable name of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassNoSpeech:
		return "no-speech"
	case ClassFatal:
		return "fatal"
	case ClassNetwork:
		return "network"
	case ClassLanguage:
		return "language"
	case ClassAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Class returns the recovery class for c.
func (c ErrorCode) Class() ErrorClass {
	switch c {
	case CodeNoSpeech:
		return ClassNoSpeech
	case CodeAudioCapture, CodeNotAllowed:
		return ClassFatal
	case CodeNetwork:
		return ClassNetwork
	case CodeLanguageNotSupported:
		return ClassLanguage
	case CodeAborted:
		return ClassAborted
	default:
		return ClassUnknown
	}
}

// EngineError is an error carrying a classified [ErrorCode]. Providers return
// it (possibly wrapped) from StartStream when the failure maps to a known code.
type EngineError struct {
	Code ErrorCode
	Err  error
}

// Error implements error.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stt: engine error %q", e.Code)
	}
	return fmt.Sprintf("stt: engine error %q: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error { return e.Err }

// CodeOf extracts the [ErrorCode] from err. Errors that do not wrap an
// [*EngineError] yield the empty code, which classifies as [ClassUnknown].
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
