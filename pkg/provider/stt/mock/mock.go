// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig and to script failures of individual StartStream calls. Use
// Session to replay a scripted sequence of events and inspect which audio
// chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession(
//	    stt.ResultEvent(true, "ka"),
//	    stt.EndEvent(),
//	)
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// ErrClosed is returned by Session.SendAudio after Close.
var ErrClosed = errors.New("mock: session is closed")

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out in order, one per successful StartStream call.
	// Once exhausted, StartStream returns a fresh idle Session.
	Sessions []*Session

	// StartStreamErrs, if non-empty, is consumed one entry per call. A nil
	// entry lets that call succeed.
	StartStreamErrs []error

	// StartStreamErr, if non-nil, is returned from every call once
	// StartStreamErrs is exhausted.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	next int
}

// StartStream records the call and returns the next scripted Session or error.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if len(p.StartStreamErrs) > 0 {
		err := p.StartStreamErrs[0]
		p.StartStreamErrs = p.StartStreamErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.next < len(p.Sessions) {
		s := p.Sessions[p.next]
		p.next++
		return s, nil
	}
	return NewSession(), nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Languages returns the Language of every recorded StartStream call in order.
func (p *Provider) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	langs := make([]string, len(p.StartStreamCalls))
	for i, c := range p.StartStreamCalls {
		langs[i] = c.Cfg.Language
	}
	return langs
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Events passed to
// NewSession are buffered and delivered as soon as the consumer reads; more
// can be pushed with Emit.
type Session struct {
	mu     sync.Mutex
	events chan stt.Event
	closed bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseBlock, if non-nil, makes Close wait until it is closed, after
	// the event channel has been closed. It simulates a provider flushing
	// the stream.
	CloseBlock <-chan struct{}

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session pre-loaded with script.
func NewSession(script ...stt.Event) *Session {
	s := &Session{events: make(chan stt.Event, len(script)+64)}
	for _, ev := range script {
		s.events <- ev
	}
	return s
}

// Emit pushes ev onto the event stream. It reports false when the session
// has already been closed.
func (s *Session) Emit(ev stt.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Events returns the scripted event channel.
func (s *Session) Events() <-chan stt.Event {
	return s.events
}

// Close records the call, closes the event channel once, and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	block, err := s.CloseBlock, s.CloseErr
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
