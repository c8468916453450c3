package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

var errClosed = errors.New("replay: session is closed")

// Provider implements stt.Provider by replaying a [Script].
type Provider struct {
	script *Script

	mu        sync.Mutex
	next      int
	starts    []stt.StreamConfig
	exhausted chan struct{}
	exhOnce   sync.Once
}

// New returns a Provider replaying script.
func New(script *Script) *Provider {
	return &Provider{
		script:    script,
		exhausted: make(chan struct{}),
	}
}

// Exhausted is closed once a stream is requested after every segment has
// been played. At that point every scripted result has been consumed by the
// caller.
func (p *Provider) Exhausted() <-chan struct{} { return p.exhausted }

// Starts returns the configs of every StartStream call so far.
func (p *Provider) Starts() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.StreamConfig(nil), p.starts...)
}

// StartStream opens a session playing the next segment. Once the script is
// exhausted it returns an idle session that emits nothing until closed.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.starts = append(p.starts, cfg)
	var seg *Segment
	if p.next < len(p.script.Segments) {
		seg = &p.script.Segments[p.next]
		p.next++
	}
	p.mu.Unlock()

	if seg == nil {
		p.exhOnce.Do(func() { close(p.exhausted) })
		return newSession(nil), nil
	}
	if seg.Reject != "" {
		return nil, fmt.Errorf("replay: %w", &stt.EngineError{
			Code: stt.ErrorCode(seg.Reject),
			Err:  fmt.Errorf("scripted rejection of %q", cfg.Language),
		})
	}
	return newSession(seg.Events), nil
}

// session plays a list of events and implements stt.SessionHandle.
type session struct {
	events chan stt.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// newSession starts playback of evs. A nil slice yields an idle session.
func newSession(evs []Event) *session {
	s := &session{
		events: make(chan stt.Event),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.play(evs)
	return s
}

func (s *session) play(evs []Event) {
	defer s.wg.Done()
	defer close(s.events)

	if evs == nil {
		<-s.done
		return
	}

	terminated := false
	for _, ev := range evs {
		if ev.Delay > 0 {
			t := time.NewTimer(ev.Delay)
			select {
			case <-t.C:
			case <-s.done:
				t.Stop()
				return
			}
		}
		out := toEvent(ev)
		if !s.emit(out) {
			return
		}
		if out.Kind != stt.EventResult {
			terminated = true
			break
		}
	}
	// A segment that runs out of events ends like an engine that went quiet.
	if !terminated {
		s.emit(stt.EndEvent())
	}
}

func (s *session) emit(ev stt.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func toEvent(ev Event) stt.Event {
	switch {
	case ev.End:
		return stt.EndEvent()
	case ev.Error != "":
		return stt.ErrorEvent(stt.ErrorCode(ev.Error), ev.Message)
	default:
		return stt.ResultEvent(ev.IsFinal(), ev.Texts()...)
	}
}

// SendAudio discards audio; the script alone drives recognition.
func (s *session) SendAudio([]byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
		return nil
	}
}

// Events returns the scripted event stream.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close stops playback.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
