// Package recognition keeps a streaming speech recognizer listening for the
// whole lifetime of a practice session.
//
// Streaming engines stop on their own: after silence, on transient network
// failures, or when the vendor closes an idle stream. The [Controller] owns
// the active [stt.SessionHandle] and restarts it according to a per-class
// recovery [Policy] until the caller stops it or a terminal condition is
// reached.
//
// Every engine event, restart timer and stop request is processed by a single
// event-loop goroutine in arrival order, so no two restarts can race and no
// restart can run after a stop.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

var (
	// ErrNoSupportedLanguage is reported when the primary language and every
	// fallback have been rejected by the engine.
	ErrNoSupportedLanguage = errors.New("recognition: no supported language")

	// ErrRetriesExhausted is reported when unclassified errors persist past
	// [Policy.MaxUnknownRetries].
	ErrRetriesExhausted = errors.New("recognition: retries exhausted")

	// ErrRestartFailed is reported when the stream could not be reopened
	// within [Policy.MaxRestartAttempts].
	ErrRestartFailed = errors.New("recognition: restart failed")

	// ErrNetwork wraps network errors delivered through [Handler.OnWarning].
	// It is not terminal; the controller keeps retrying.
	ErrNetwork = errors.New("recognition: network error")

	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("recognition: already started")

	// ErrNotListening is returned by SendAudio while no stream is open.
	ErrNotListening = errors.New("recognition: not listening")
)

// State is the lifecycle state of a [Controller].
type State int32

const (
	// Idle means Start has not been called yet.
	Idle State = iota
	// Listening means a stream is open and receiving audio.
	Listening
	// Restarting means the previous stream ended and a new one is pending.
	Restarting
	// Stopped is terminal.
	Stopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Restarting:
		return "restarting"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler receives the controller's notifications. All methods are called
// from the event-loop goroutine (OnStateChange may additionally be called
// from Start) and must not block for long.
type Handler interface {
	// OnResult is called for every recognition result.
	OnResult(stt.Result)
	// OnWarning reports a non-terminal condition such as a network error.
	OnWarning(error)
	// OnFatal reports a terminal error. The controller is Stopped afterwards.
	OnFatal(error)
	// OnStateChange is called whenever the lifecycle state changes.
	OnStateChange(State)
}

// HandlerFuncs adapts plain functions to [Handler]. Nil fields are no-ops.
type HandlerFuncs struct {
	Result      func(stt.Result)
	Warning     func(error)
	Fatal       func(error)
	StateChange func(State)
}

var _ Handler = HandlerFuncs{}

// OnResult implements [Handler].
func (h HandlerFuncs) OnResult(r stt.Result) {
	if h.Result != nil {
		h.Result(r)
	}
}

// OnWarning implements [Handler].
func (h HandlerFuncs) OnWarning(err error) {
	if h.Warning != nil {
		h.Warning(err)
	}
}

// OnFatal implements [Handler].
func (h HandlerFuncs) OnFatal(err error) {
	if h.Fatal != nil {
		h.Fatal(err)
	}
}

// OnStateChange implements [Handler].
func (h HandlerFuncs) OnStateChange(s State) {
	if h.StateChange != nil {
		h.StateChange(s)
	}
}

// Config configures a [Controller].
type Config struct {
	// Language is the primary BCP-47 recognition language.
	Language string

	// FallbackLanguages are tried in order when the engine rejects the
	// current language.
	FallbackLanguages []string

	// MaxAlternatives is the number of ranked hypotheses requested per result.
	MaxAlternatives int

	// InterimResults requests non-final results from the engine.
	InterimResults bool

	// SampleRate and Channels describe the PCM audio sent to the engine.
	SampleRate int
	Channels   int

	// Policy configures error recovery.
	Policy Policy
}

// Option is a functional option for a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics records restarts and engine errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller keeps an [stt.Provider] stream alive across engine stops.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	provider stt.Provider
	handler  Handler
	cfg      Config
	policy   Policy
	logger   *slog.Logger
	metrics  *observe.Metrics

	languages []string

	state   atomic.Int32
	started atomic.Bool

	mu      sync.Mutex
	handle  stt.SessionHandle
	langIdx int

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closers  sync.WaitGroup

	// Owned by the event-loop goroutine.
	unknownRetries int
}

// New creates a Controller. The handler must not be nil.
func New(provider stt.Provider, handler Handler, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		provider:  provider,
		handler:   handler,
		cfg:       cfg,
		policy:    cfg.Policy.withDefaults(),
		logger:    slog.Default(),
		languages: append([]string{cfg.Language}, cfg.FallbackLanguages...),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the first stream and launches the event loop. On failure the
// controller moves to [Stopped] and the error is returned; no handler
// notification other than the state change is made.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	select {
	case <-c.stopCh:
		close(c.done)
		return fmt.Errorf("recognition: start: %w", context.Canceled)
	default:
	}
	if err := c.open(ctx); err != nil {
		c.setState(Stopped)
		close(c.done)
		return fmt.Errorf("recognition: start: %w", err)
	}
	go c.loop(ctx)
	return nil
}

// Stop ends the session. The active stream is closed by the event loop and
// no restart happens afterwards. Safe to call multiple times and before
// Start. Use [Controller.Wait] to block until the loop has exited.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	if !c.started.Load() {
		c.setState(Stopped)
	}
	return nil
}

// Wait blocks until the event loop has exited and the stream is released.
// It returns immediately if Start was never called or failed.
func (c *Controller) Wait() {
	if !c.started.Load() {
		return
	}
	<-c.done
}

// Done returns a channel closed once the event loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Language returns the language currently used for recognition.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.languages[c.langIdx]
}

// SendAudio forwards a PCM chunk to the active stream. While the controller
// is restarting there is no stream and [ErrNotListening] is returned; the
// chunk is dropped.
func (c *Controller) SendAudio(chunk []byte) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return ErrNotListening
	}
	return h.SendAudio(chunk)
}

func (c *Controller) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.handler.OnStateChange(s)
	}
}

func (c *Controller) stopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Controller) streamConfig(lang string) stt.StreamConfig {
	return stt.StreamConfig{
		SampleRate:      c.cfg.SampleRate,
		Channels:        c.cfg.Channels,
		Language:        lang,
		MaxAlternatives: c.cfg.MaxAlternatives,
		InterimResults:  c.cfg.InterimResults,
	}
}

// open starts a stream in the current language, advancing through the
// fallback languages while the engine rejects them.
func (c *Controller) open(ctx context.Context) error {
	for {
		lang := c.Language()
		h, err := c.provider.StartStream(ctx, c.streamConfig(lang))
		if err == nil {
			c.mu.Lock()
			c.handle = h
			c.mu.Unlock()
			c.setState(Listening)
			c.logger.Debug("recognition stream opened", "language", lang)
			return nil
		}
		if stt.CodeOf(err).Class() != stt.ClassLanguage {
			return err
		}
		if !c.advanceLanguage() {
			return fmt.Errorf("%w: %w", ErrNoSupportedLanguage, err)
		}
		c.logger.Warn("language rejected by engine, trying fallback",
			"rejected", lang, "next", c.Language())
	}
}

// advanceLanguage moves the language cursor. It reports false when the
// fallback list is exhausted.
func (c *Controller) advanceLanguage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.langIdx+1 >= len(c.languages) {
		return false
	}
	c.langIdx++
	return true
}

// releaseHandle detaches the active stream, if any, and closes it on its own
// goroutine. Providers may wait for the engine to flush on Close, which must
// not hold up restarts or a Stop. The loop waits for pending closes before it
// reports done.
func (c *Controller) releaseHandle() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h == nil {
		return
	}
	c.closers.Add(1)
	go func() {
		defer c.closers.Done()
		if err := h.Close(); err != nil {
			c.logger.Debug("closing recognition stream", "err", err)
		}
	}()
}

func (c *Controller) events() <-chan stt.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	return c.handle.Events()
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	defer c.closers.Wait()
	defer c.setState(Stopped)
	defer c.releaseHandle()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// schedule closes the current stream and arms a restart after d.
	schedule := func(d time.Duration) {
		c.releaseHandle()
		c.setState(Restarting)
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-timerC:
			timerC = nil
			if !c.restart(ctx, "retry") {
				return
			}
		case ev, ok := <-c.events():
			if !ok {
				ev = stt.EndEvent()
			}
			switch ev.Kind {
			case stt.EventResult:
				c.unknownRetries = 0
				c.handler.OnResult(ev.Result)
			case stt.EventEnd:
				c.releaseHandle()
				c.setState(Restarting)
				if !c.restart(ctx, "end") {
					return
				}
			case stt.EventError:
				d, ok := c.recover(ctx, ev)
				if !ok {
					return
				}
				schedule(d)
			}
		}
	}
}

// recover applies the error policy to ev and returns the restart delay. It
// reports false when the session must stop; OnFatal has then been called.
func (c *Controller) recover(ctx context.Context, ev stt.Event) (time.Duration, bool) {
	code := ev.Code
	if c.metrics != nil {
		c.metrics.RecordRecognitionError(ctx, string(code))
	}
	engineErr := &stt.EngineError{Code: code}
	if ev.Message != "" {
		engineErr.Err = errors.New(ev.Message)
	}
	log := c.logger.With("code", string(code), "message", ev.Message)

	switch code.Class() {
	case stt.ClassNoSpeech:
		log.Debug("no speech detected, restarting")
		return c.policy.NoSpeechDelay, true
	case stt.ClassFatal:
		log.Error("recognition input unusable")
		c.fatal(fmt.Errorf("recognition: %w", engineErr))
		return 0, false
	case stt.ClassNetwork:
		log.Warn("recognition network error, retrying")
		c.handler.OnWarning(fmt.Errorf("%w: %w", ErrNetwork, engineErr))
		return c.policy.NetworkDelay, true
	case stt.ClassLanguage:
		prev := c.Language()
		if !c.advanceLanguage() {
			log.Error("no supported recognition language left", "language", prev)
			c.fatal(fmt.Errorf("%w: %w", ErrNoSupportedLanguage, engineErr))
			return 0, false
		}
		log.Warn("language rejected by engine, trying fallback", "rejected", prev, "next", c.Language())
		return 0, true
	case stt.ClassAborted:
		log.Info("recognition aborted, restarting")
		return c.policy.AbortedDelay, true
	default:
		c.unknownRetries++
		if c.unknownRetries > c.policy.MaxUnknownRetries {
			log.Error("recognition retries exhausted", "retries", c.unknownRetries-1)
			c.fatal(fmt.Errorf("%w: %w", ErrRetriesExhausted, engineErr))
			return 0, false
		}
		d := c.policy.UnknownDelay * time.Duration(c.unknownRetries)
		log.Warn("unclassified recognition error, retrying",
			"attempt", c.unknownRetries, "max_retries", c.policy.MaxUnknownRetries, "delay", d)
		return d, true
	}
}

// restart reopens the stream with bounded exponential backoff. It reports
// false when the session must stop.
func (c *Controller) restart(ctx context.Context, reason string) bool {
	backoff := c.policy.RestartBackoff
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxRestartAttempts; attempt++ {
		if c.stopping() || ctx.Err() != nil {
			return false
		}
		if c.metrics != nil {
			c.metrics.RecordRestart(ctx, reason)
		}
		err := c.open(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("recognition restart succeeded", "attempt", attempt)
			}
			return true
		}
		lastErr = err
		if errors.Is(err, ErrNoSupportedLanguage) || stt.CodeOf(err).Class() == stt.ClassFatal {
			c.fatal(fmt.Errorf("recognition: restart: %w", err))
			return false
		}

		c.logger.Warn("recognition restart attempt failed",
			"attempt", attempt,
			"max_attempts", c.policy.MaxRestartAttempts,
			"backoff", backoff,
			"err", err,
		)
		if attempt == c.policy.MaxRestartAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.policy.MaxRestartBackoff {
			backoff = c.policy.MaxRestartBackoff
		}
	}

	c.fatal(fmt.Errorf("%w after %d attempts: %w", ErrRestartFailed, c.policy.MaxRestartAttempts, lastErr))
	return false
}

func (c *Controller) fatal(err error) {
	c.releaseHandle()
	c.setState(Stopped)
	c.handler.OnFatal(err)
}
