// Package practice runs one read-aloud attempt end to end.
//
// A [Session] owns everything a single attempt needs: the reference passage,
// the per-word progress tracker, the alignment engine, the recognition
// controller and, optionally, the audio source feeding it. Results from the
// controller are aligned one at a time on the session's own goroutine, so the
// tracker and pointer are never mutated concurrently. Nothing outlives the
// attempt.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/readalong/internal/align"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/reading"
	"github.com/MrWong99/readalong/internal/recognition"
	"github.com/MrWong99/readalong/internal/transcript/normalize"
	"github.com/MrWong99/readalong/internal/transcript/phonetic"
	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("practice: session already ran")

// Listener receives live progress. Methods are called from the session's
// goroutine and must not block for long.
type Listener interface {
	// OnWordState is called for every word whose state changes.
	OnWordState(index int, state reading.WordState)
	// OnSummary is called exactly once when the session ends.
	OnSummary(reading.Summary)
	// OnFatal is called once when the session ends because of an
	// unrecoverable error.
	OnFatal(error)
}

// ListenerFuncs adapts plain functions to [Listener]. Nil fields are no-ops.
type ListenerFuncs struct {
	WordState func(int, reading.WordState)
	Summary   func(reading.Summary)
	Fatal     func(error)
}

var _ Listener = ListenerFuncs{}

// OnWordState implements [Listener].
func (l ListenerFuncs) OnWordState(i int, s reading.WordState) {
	if l.WordState != nil {
		l.WordState(i, s)
	}
}

// OnSummary implements [Listener].
func (l ListenerFuncs) OnSummary(s reading.Summary) {
	if l.Summary != nil {
		l.Summary(s)
	}
}

// OnFatal implements [Listener].
func (l ListenerFuncs) OnFatal(err error) {
	if l.Fatal != nil {
		l.Fatal(err)
	}
}

// Option is a functional option for [New].
type Option func(*Session)

// WithListener sets the progress listener.
func WithListener(l Listener) Option {
	return func(s *Session) {
		s.listener = l
	}
}

// WithAudioSource streams PCM from src to the provider. It is converted to
// the configured stream format when needed.
func WithAudioSource(src audio.Source) Option {
	return func(s *Session) {
		s.source = src
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics records session, word and recognition metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session is one practice attempt. Create it with [New] and drive it with
// [Session.Run]. Stop, Restart and the read-only accessors are safe to call
// from any goroutine.
type Session struct {
	id       ulid.ULID
	cfg      Config
	provider stt.Provider
	passage  *reading.Passage
	tracker  *reading.Tracker
	engine   *align.Engine

	source   audio.Source
	listener Listener
	logger   *slog.Logger
	metrics  *observe.Metrics

	results   chan stt.Result
	fatals    chan error
	audioDone chan struct{}
	restartCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once

	ran         atomic.Bool
	summaryOnce sync.Once
	recState    atomic.Int32
}

// New prepares a session for cfg.Passage. It fails fast with
// [reading.ErrEmptyPassage] when the passage has no words.
func New(cfg Config, provider stt.Provider, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Stream.Validate(); err != nil {
		return nil, fmt.Errorf("practice: stream format: %w", err)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("practice: recognition policy: %w", err)
	}

	script := normalize.ScriptForLanguage(cfg.Language)
	if cfg.Script != "" {
		var ok bool
		if script, ok = normalize.ScriptByName(cfg.Script); !ok {
			return nil, fmt.Errorf("practice: unknown script %q", cfg.Script)
		}
	}
	matcherOpts := []phonetic.Option{
		phonetic.WithNormalizer(normalize.New(script)),
		phonetic.WithMetaphone(cfg.Metaphone),
	}
	if cfg.Thresholds != nil {
		matcherOpts = append(matcherOpts, phonetic.WithThresholds(*cfg.Thresholds))
	}
	matcher := phonetic.New(matcherOpts...)

	passage, err := reading.NewPassage(cfg.Passage, matcher.Normalizer())
	if err != nil {
		return nil, fmt.Errorf("practice: %w", err)
	}

	var alignOpts []align.Option
	if cfg.Weights != nil {
		alignOpts = append(alignOpts, align.WithWeights(*cfg.Weights))
	}
	if cfg.MinSimilarity > 0 {
		alignOpts = append(alignOpts, align.WithMinSimilarity(cfg.MinSimilarity))
	}

	s := &Session{
		id:        ulid.Make(),
		cfg:       cfg,
		provider:  provider,
		passage:   passage,
		engine:    align.New(matcher, alignOpts...),
		listener:  ListenerFuncs{},
		logger:    slog.Default(),
		results:   make(chan stt.Result, 16),
		fatals:    make(chan error, 1),
		audioDone: make(chan struct{}),
		restartCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.source != nil {
		s.source = audio.ConvertSource(s.source, cfg.Stream)
	}
	s.logger = s.logger.With("session_id", s.id.String())
	s.tracker = reading.NewTracker(passage.Len(), s.onWordState)
	return s, nil
}

// ID returns the session's unique, time-ordered identifier.
func (s *Session) ID() string { return s.id.String() }

// Passage returns the reference passage.
func (s *Session) Passage() *reading.Passage { return s.passage }

// States returns a snapshot of every word's state.
func (s *Session) States() []reading.WordState { return s.tracker.States() }

// RecognitionState reports the state of the recognition stream. It is
// [recognition.Idle] before Run and [recognition.Stopped] after it returns.
func (s *Session) RecognitionState() recognition.State {
	return recognition.State(s.recState.Load())
}

// Pointer returns the index of the word currently expected.
func (s *Session) Pointer() int { return s.tracker.Pointer() }

// Stop ends the session early. Words not yet read are marked incorrect and
// the summary is emitted. Safe to call multiple times and before Run.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Restart discards all progress and starts the passage over. Recognition
// keeps running.
func (s *Session) Restart() {
	select {
	case s.restartCh <- struct{}{}:
	default:
	}
}

// Run drives the session until the passage is complete, the caller stops it
// (Stop or ctx cancellation), or an unrecoverable error occurs. The
// recognition stream is released on every exit path. The returned summary is
// the one delivered to [Listener.OnSummary]; the error is non-nil only for
// unrecoverable failures.
func (s *Session) Run(ctx context.Context) (reading.Summary, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return reading.Summary{}, ErrAlreadyRunning
	}

	ctx, span := observe.StartSpan(ctx, "practice.session",
		trace.WithAttributes(
			attribute.String("session.id", s.ID()),
			attribute.Int("passage.words", s.passage.Len()),
			attribute.String("language", s.cfg.Language),
		),
	)
	defer span.End()
	s.logger = observe.Logger(ctx, s.logger)

	ctx, cancel := context.WithCancel(ctx)
	started := time.Now()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}

	ctrl := recognition.New(s.provider, &controllerHandler{s: s, ctx: ctx}, recognition.Config{
		Language:          s.cfg.Language,
		FallbackLanguages: s.cfg.FallbackLanguages,
		MaxAlternatives:   s.cfg.MaxAlternatives,
		InterimResults:    s.cfg.AlignInterim,
		SampleRate:        s.cfg.Stream.SampleRate,
		Channels:          s.cfg.Stream.Channels,
		Policy:            s.cfg.Policy,
	}, s.controllerOptions()...)

	if err := ctrl.Start(ctx); err != nil {
		cancel()
		err = fmt.Errorf("practice: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognition start failed")
		s.listener.OnFatal(err)
		return s.finish(ctx, false, started), err
	}
	defer func() {
		_ = ctrl.Stop()
		ctrl.Wait()
	}()
	defer cancel()

	s.logger.Info("practice session started",
		"words", s.passage.Len(), "language", ctrl.Language())

	audioDone := s.audioDone
	if s.source != nil {
		go s.pump(ctx, ctrl)
	}

	var drain <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("practice session cancelled")
			s.tracker.Finish()
			return s.finish(ctx, false, started), nil

		case <-s.stopCh:
			if s.drainResults(ctx) {
				return s.finish(ctx, true, started), nil
			}
			s.logger.Info("practice session stopped by caller", "pointer", s.tracker.Pointer())
			s.tracker.Finish()
			return s.finish(ctx, false, started), nil

		case <-s.restartCh:
			s.logger.Info("practice session restarted")
			s.tracker.Reset()
			for i := range s.passage.Len() {
				s.listener.OnWordState(i, reading.Pending)
			}

		case <-audioDone:
			audioDone = nil
			drain = time.After(s.cfg.DrainTimeout)

		case <-drain:
			if s.drainResults(ctx) {
				return s.finish(ctx, true, started), nil
			}
			s.logger.Info("audio exhausted, ending session", "pointer", s.tracker.Pointer())
			s.tracker.Finish()
			return s.finish(ctx, false, started), nil

		case r := <-s.results:
			if !r.IsFinal && !s.cfg.AlignInterim {
				continue
			}
			s.align(ctx, r)
			if s.tracker.Complete() {
				s.logger.Info("passage completed")
				return s.finish(ctx, true, started), nil
			}

		case err := <-s.fatals:
			// Results delivered before the failure still count.
			if s.drainResults(ctx) {
				return s.finish(ctx, true, started), nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "session failed")
			s.logger.Error("practice session failed", "err", err)
			s.listener.OnFatal(err)
			return s.finish(ctx, false, started), err
		}
	}
}

// drainResults aligns every result already queued. It reports whether the
// passage got completed.
func (s *Session) drainResults(ctx context.Context) bool {
	for {
		select {
		case r := <-s.results:
			if !r.IsFinal && !s.cfg.AlignInterim {
				continue
			}
			s.align(ctx, r)
			if s.tracker.Complete() {
				return true
			}
		default:
			return false
		}
	}
}

func (s *Session) controllerOptions() []recognition.Option {
	opts := []recognition.Option{recognition.WithLogger(s.logger)}
	if s.metrics != nil {
		opts = append(opts, recognition.WithMetrics(s.metrics))
	}
	return opts
}

// align applies one recognition result to the tracker.
func (s *Session) align(ctx context.Context, r stt.Result) {
	start := time.Now()
	d := s.engine.Align(s.passage, s.tracker, r)
	if s.metrics != nil {
		s.metrics.AlignmentDuration.Record(ctx, time.Since(start).Seconds())
	}
	s.logger.Debug("aligned result",
		"transcript", r.Primary(),
		"final", r.IsFinal,
		"matched", d.Matched,
		"index", d.Index,
		"score", d.Score,
	)
	s.tracker.Apply(d)
}

// pump forwards audio until the source is exhausted, fails, or ctx ends.
func (s *Session) pump(ctx context.Context, ctrl *recognition.Controller) {
	bytesPerSecond := s.cfg.Stream.BytesPer(time.Second)
	for ctx.Err() == nil {
		chunk, err := s.source.ReadChunk()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("audio source exhausted")
			close(s.audioDone)
			return
		}
		if err != nil {
			s.fail(&stt.EngineError{Code: stt.CodeAudioCapture, Err: err})
			return
		}
		if err := ctrl.SendAudio(chunk); err != nil && !errors.Is(err, recognition.ErrNotListening) {
			s.logger.Debug("dropping audio chunk", "err", err)
		}
		if s.cfg.RealTime {
			d := time.Duration(int64(len(chunk)) * int64(time.Second) / int64(bytesPerSecond))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
		}
	}
}

// fail reports an unrecoverable error to the session loop. Only the first
// error is kept.
func (s *Session) fail(err error) {
	select {
	case s.fatals <- fmt.Errorf("practice: %w", err):
	default:
	}
}

func (s *Session) onWordState(i int, st reading.WordState) {
	if s.metrics != nil && st.IsResolved() {
		s.metrics.RecordWord(context.Background(), st.String())
	}
	s.listener.OnWordState(i, st)
}

// finish builds the summary and delivers it exactly once.
func (s *Session) finish(ctx context.Context, completed bool, started time.Time) reading.Summary {
	sum := reading.BuildSummary(s.tracker.States(), completed)
	s.summaryOnce.Do(func() {
		if s.metrics != nil {
			s.metrics.RecordSession(context.WithoutCancel(ctx), time.Since(started).Seconds(), sum.AccuracyPercent, completed)
		}
		s.logger.Info("practice session finished",
			"completed", sum.Completed,
			"correct", sum.CorrectWords,
			"total", sum.TotalWords,
			"accuracy", sum.AccuracyPercent,
		)
		s.listener.OnSummary(sum)
	})
	return sum
}

// controllerHandler routes controller callbacks onto the session loop.
type controllerHandler struct {
	s   *Session
	ctx context.Context
}

func (h *controllerHandler) OnResult(r stt.Result) {
	select {
	case h.s.results <- r:
	case <-h.ctx.Done():
	}
}

func (h *controllerHandler) OnWarning(err error) {
	h.s.logger.Warn("recognition warning", "err", err)
}

func (h *controllerHandler) OnFatal(err error) {
	h.s.fail(err)
}

func (h *controllerHandler) OnStateChange(st recognition.State) {
	h.s.recState.Store(int32(st))
	h.s.logger.Debug("recognition state changed", "state", st.String())
}
