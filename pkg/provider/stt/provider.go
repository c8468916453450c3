// Package stt defines the Provider interface for streaming Speech-to-Text
// backends consumed by the reading aligner.
//
// An STT provider wraps a continuous recognition service (e.g., Deepgram or
// Google Cloud Speech-to-Text) and exposes a uniform streaming interface. The
// central abstraction is SessionHandle: once opened, a session accepts raw PCM
// audio frames and emits a single ordered stream of [Event] values: results
// with ranked alternatives, classified errors, and an end marker when the
// engine stops on its own (e.g., silence timeout).
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition settings for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000 (STT-optimised
	// mono), 48000 (browser/WebRTC capture).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most STT
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "hi-IN", "en-US").
	Language string

	// MaxAlternatives is the number of ranked transcriptions requested per
	// result. Providers clamp this to their own supported range. Zero means 1.
	MaxAlternatives int

	// InterimResults requests non-final hypotheses while the speaker is still
	// talking.
	InterimResults bool
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do so
// may leak goroutines and network connections inside the provider implementation.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM audio to the
	// provider. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns a read-only channel delivering results, errors and the end
	// marker in arrival order. The channel is closed after the final event
	// (normally [EventEnd]) has been delivered or the session was closed.
	Events() <-chan Event

	// Close terminates the session and releases all associated resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new streaming recognition session. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already cancelled).
	// An error that wraps an [*EngineError] carries a classified [ErrorCode].
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
