package recognition_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/recognition"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	"github.com/MrWong99/readalong/pkg/provider/stt/mock"
)

// recorder is a Handler that records every notification.
type recorder struct {
	mu       sync.Mutex
	results  []stt.Result
	warnings []error
	fatals   []error
	states   []recognition.State
}

func (r *recorder) OnResult(res stt.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) OnWarning(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, err)
}

func (r *recorder) OnFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, err)
}

func (r *recorder) OnStateChange(s recognition.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() (results []stt.Result, warnings, fatals []error, states []recognition.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results), slices.Clone(r.warnings), slices.Clone(r.fatals), slices.Clone(r.states)
}

// fastPolicy keeps every delay short enough for unit tests.
func fastPolicy() recognition.Policy {
	return recognition.Policy{
		NoSpeechDelay:      5 * time.Millisecond,
		AbortedDelay:       5 * time.Millisecond,
		NetworkDelay:       5 * time.Millisecond,
		UnknownDelay:       time.Millisecond,
		MaxUnknownRetries:  3,
		MaxRestartAttempts: 3,
		RestartBackoff:     time.Millisecond,
		MaxRestartBackoff:  2 * time.Millisecond,
	}
}

func newController(t *testing.T, p *mock.Provider, cfg recognition.Config) (*recognition.Controller, *recorder) {
	t.Helper()
	if cfg.Language == "" {
		cfg.Language = "hi-IN"
	}
	if cfg.Policy == (recognition.Policy{}) {
		cfg.Policy = fastPolicy()
	}
	rec := &recorder{}
	c := recognition.New(p, rec, cfg)
	t.Cleanup(func() {
		_ = c.Stop()
		c.Wait()
	})
	return c, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, c *recognition.Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestController_StartForwardsResults(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession(stt.ResultEvent(true, "ka", "kha"))
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	c, rec := newController(t, p, recognition.Config{MaxAlternatives: 5, SampleRate: 16000, Channels: 1})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "result", func() bool {
		res, _, _, _ := rec.snapshot()
		return len(res) == 1
	})

	if c.State() != recognition.Listening {
		t.Errorf("State = %v, want listening", c.State())
	}
	cfg := p.StartStreamCalls[0].Cfg
	if cfg.Language != "hi-IN" || cfg.MaxAlternatives != 5 || cfg.SampleRate != 16000 {
		t.Errorf("StreamConfig = %+v", cfg)
	}
	res, _, _, _ := rec.snapshot()
	if res[0].Primary() != "ka" || len(res[0].Alternatives) != 2 {
		t.Errorf("result = %+v", res[0])
	}
}

func TestController_NoSpeechRestartsSameLanguage(t *testing.T) {
	t.Parallel()

	first := mock.NewSession(stt.ErrorEvent(stt.CodeNoSpeech, "silence"))
	p := &mock.Provider{Sessions: []*mock.Session{first}}
	c, rec := newController(t, p, recognition.Config{})

	start := time.Now()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "restart", func() bool { return p.CallCount() == 2 })

	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("restart after %s, want at least the no-speech delay", elapsed)
	}
	waitFor(t, "listening", func() bool { return c.State() == recognition.Listening })
	if got := p.Languages(); got[0] != got[1] {
		t.Errorf("languages = %v, want unchanged", got)
	}
	waitFor(t, "first stream closed", first.Closed)
	_, warnings, fatals, states := rec.snapshot()
	if len(warnings) != 0 || len(fatals) != 0 {
		t.Errorf("warnings=%v fatals=%v, want none", warnings, fatals)
	}
	if !slices.Contains(states, recognition.Restarting) {
		t.Errorf("states = %v, want restarting transition", states)
	}
}

func TestController_NetworkErrorWarnsOnceAndRetries(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Sessions: []*mock.Session{
		mock.NewSession(stt.ErrorEvent(stt.CodeNetwork, "connection reset")),
	}}
	c, rec := newController(t, p, recognition.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "restart", func() bool { return p.CallCount() == 2 })
	waitFor(t, "listening", func() bool { return c.State() == recognition.Listening })

	_, warnings, fatals, _ := rec.snapshot()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if !errors.Is(warnings[0], recognition.ErrNetwork) {
		t.Errorf("warning = %v, want ErrNetwork", warnings[0])
	}
	if stt.CodeOf(warnings[0]) != stt.CodeNetwork {
		t.Errorf("warning code = %q, want network", stt.CodeOf(warnings[0]))
	}
	if len(fatals) != 0 {
		t.Errorf("fatals = %v, want none", fatals)
	}
}

func TestController_FatalCodesStop(t *testing.T) {
	t.Parallel()

	for _, code := range []stt.ErrorCode{stt.CodeAudioCapture, stt.CodeNotAllowed} {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()

			p := &mock.Provider{Sessions: []*mock.Session{mock.NewSession(stt.ErrorEvent(code, ""))}}
			c, rec := newController(t, p, recognition.Config{})
			if err := c.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitDone(t, c)

			_, _, fatals, _ := rec.snapshot()
			if len(fatals) != 1 {
				t.Fatalf("fatals = %d, want exactly 1", len(fatals))
			}
			if stt.CodeOf(fatals[0]) != code {
				t.Errorf("fatal code = %q, want %q", stt.CodeOf(fatals[0]), code)
			}
			if c.State() != recognition.Stopped {
				t.Errorf("State = %v, want stopped", c.State())
			}
			if p.CallCount() != 1 {
				t.Errorf("StartStream calls = %d, want no restart", p.CallCount())
			}
		})
	}
}

func TestController_LanguageFallback(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Sessions: []*mock.Session{
		mock.NewSession(stt.ErrorEvent(stt.CodeLanguageNotSupported, "")),
	}}
	c, _ := newController(t, p, recognition.Config{Language: "mai-IN", FallbackLanguages: []string{"hi-IN"}})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "fallback stream", func() bool { return p.CallCount() == 2 })

	if got, want := p.Languages(), []string{"mai-IN", "hi-IN"}; !slices.Equal(got, want) {
		t.Errorf("languages = %v, want %v", got, want)
	}
	if c.Language() != "hi-IN" {
		t.Errorf("Language = %q, want hi-IN", c.Language())
	}
}

func TestController_LanguageFallbackExhausted(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Sessions: []*mock.Session{
		mock.NewSession(stt.ErrorEvent(stt.CodeLanguageNotSupported, "")),
		mock.NewSession(stt.ErrorEvent(stt.CodeLanguageNotSupported, "")),
	}}
	c, rec := newController(t, p, recognition.Config{Language: "mai-IN", FallbackLanguages: []string{"hi-IN"}})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, c)

	_, _, fatals, _ := rec.snapshot()
	if len(fatals) != 1 || !errors.Is(fatals[0], recognition.ErrNoSupportedLanguage) {
		t.Fatalf("fatals = %v, want ErrNoSupportedLanguage", fatals)
	}
}

func TestController_StartFallsBackOnRejectedLanguage(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StartStreamErrs: []error{
		&stt.EngineError{Code: stt.CodeLanguageNotSupported},
	}}
	c, _ := newController(t, p, recognition.Config{Language: "mai-IN", FallbackLanguages: []string{"hi-IN"}})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Language() != "hi-IN" || c.State() != recognition.Listening {
		t.Errorf("language=%q state=%v, want hi-IN/listening", c.Language(), c.State())
	}
}

func TestController_UnknownRetriesExhausted(t *testing.T) {
	t.Parallel()

	weird := func() *mock.Session { return mock.NewSession(stt.ErrorEvent("bad-grammar", "")) }
	p := &mock.Provider{Sessions: []*mock.Session{weird(), weird(), weird()}}
	pol := fastPolicy()
	pol.MaxUnknownRetries = 2
	c, rec := newController(t, p, recognition.Config{Policy: pol})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, c)

	_, _, fatals, _ := rec.snapshot()
	if len(fatals) != 1 || !errors.Is(fatals[0], recognition.ErrRetriesExhausted) {
		t.Fatalf("fatals = %v, want ErrRetriesExhausted", fatals)
	}
	if p.CallCount() != 3 {
		t.Errorf("StartStream calls = %d, want 3", p.CallCount())
	}
}

func TestController_ResultResetsRetryCounter(t *testing.T) {
	t.Parallel()

	weird := stt.ErrorEvent("bad-grammar", "")
	p := &mock.Provider{Sessions: []*mock.Session{
		mock.NewSession(weird),
		mock.NewSession(stt.ResultEvent(true, "ka"), weird),
		mock.NewSession(weird),
		mock.NewSession(weird),
	}}
	pol := fastPolicy()
	pol.MaxUnknownRetries = 2
	c, rec := newController(t, p, recognition.Config{Policy: pol})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, c)

	if p.CallCount() != 4 {
		t.Errorf("StartStream calls = %d, want 4", p.CallCount())
	}
	results, _, fatals, _ := rec.snapshot()
	if len(results) != 1 || len(fatals) != 1 {
		t.Errorf("results=%d fatals=%d, want 1/1", len(results), len(fatals))
	}
}

func TestController_EndRestartsImmediately(t *testing.T) {
	t.Parallel()

	first := mock.NewSession(stt.ResultEvent(true, "ka"), stt.EndEvent())
	second := mock.NewSession(stt.ResultEvent(true, "kha"))
	p := &mock.Provider{Sessions: []*mock.Session{first, second}}
	c, rec := newController(t, p, recognition.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "second result", func() bool {
		res, _, _, _ := rec.snapshot()
		return len(res) == 2
	})
	if p.CallCount() != 2 {
		t.Errorf("StartStream calls = %d, want 2", p.CallCount())
	}
	waitFor(t, "first stream closed", first.Closed)
	if c.State() != recognition.Listening {
		t.Errorf("State = %v, want listening", c.State())
	}
}

func TestController_RestartFailureIsBounded(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial failed")
	p := &mock.Provider{
		Sessions:        []*mock.Session{mock.NewSession(stt.EndEvent())},
		StartStreamErrs: []error{nil, boom, boom, boom},
	}
	c, rec := newController(t, p, recognition.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, c)

	_, _, fatals, _ := rec.snapshot()
	if len(fatals) != 1 || !errors.Is(fatals[0], recognition.ErrRestartFailed) || !errors.Is(fatals[0], boom) {
		t.Fatalf("fatals = %v, want ErrRestartFailed wrapping the dial error", fatals)
	}
	if p.CallCount() != 4 {
		t.Errorf("StartStream calls = %d, want 1 + 3 attempts", p.CallCount())
	}
}

func TestController_RestartRecoversAfterFailure(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		Sessions:        []*mock.Session{mock.NewSession(stt.EndEvent())},
		StartStreamErrs: []error{nil, errors.New("flaky")},
	}
	c, rec := newController(t, p, recognition.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "recovered stream", func() bool { return p.CallCount() == 3 })
	waitFor(t, "listening", func() bool { return c.State() == recognition.Listening })

	_, _, fatals, _ := rec.snapshot()
	if len(fatals) != 0 {
		t.Errorf("fatals = %v, want none", fatals)
	}
}

func TestController_SlowCloseDoesNotBlockRestart(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }

	first := mock.NewSession(stt.EndEvent())
	first.CloseBlock = release
	second := mock.NewSession(stt.ResultEvent(true, "ka"))
	p := &mock.Provider{Sessions: []*mock.Session{first, second}}
	c, rec := newController(t, p, recognition.Config{})
	t.Cleanup(unblock)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "result from the restarted stream", func() bool {
		res, _, _, _ := rec.snapshot()
		return len(res) == 1
	})

	_ = c.Stop()
	waitFor(t, "stopped state", func() bool { return c.State() == recognition.Stopped })
	select {
	case <-c.Done():
		t.Fatal("controller reported done before the first stream finished closing")
	case <-time.After(20 * time.Millisecond):
	}

	unblock()
	waitDone(t, c)
	if !second.Closed() {
		t.Error("second stream should be released on stop")
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	c, rec := newController(t, p, recognition.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	c.Wait()

	if c.State() != recognition.Stopped {
		t.Errorf("State = %v, want stopped", c.State())
	}
	if !sess.Closed() {
		t.Error("stream should be released on stop")
	}
	if p.CallCount() != 1 {
		t.Errorf("StartStream calls = %d, want 1", p.CallCount())
	}
	_, _, fatals, states := rec.snapshot()
	if len(fatals) != 0 {
		t.Errorf("fatals = %v, want none on caller stop", fatals)
	}
	if want := []recognition.State{recognition.Listening, recognition.Stopped}; !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestController_StopCancelsPendingRestart(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Sessions: []*mock.Session{
		mock.NewSession(stt.ErrorEvent(stt.CodeNoSpeech, "")),
	}}
	pol := fastPolicy()
	pol.NoSpeechDelay = time.Hour
	c, _ := newController(t, p, recognition.Config{Policy: pol})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "restarting", func() bool { return c.State() == recognition.Restarting })

	_ = c.Stop()
	waitDone(t, c)
	if p.CallCount() != 1 {
		t.Errorf("StartStream calls = %d, want no restart after stop", p.CallCount())
	}
}

func TestController_StopBeforeStart(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c, _ := newController(t, p, recognition.Config{})

	_ = c.Stop()
	if c.State() != recognition.Stopped {
		t.Errorf("State = %v, want stopped", c.State())
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start after Stop should fail")
	}
	if p.CallCount() != 0 {
		t.Errorf("StartStream calls = %d, want 0", p.CallCount())
	}
}

func TestController_StartError(t *testing.T) {
	t.Parallel()

	boom := &stt.EngineError{Code: stt.CodeNotAllowed}
	p := &mock.Provider{StartStreamErr: boom}
	c, _ := newController(t, p, recognition.Config{})

	err := c.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want %v", err, boom)
	}
	if c.State() != recognition.Stopped {
		t.Errorf("State = %v, want stopped", c.State())
	}
	if err := c.Start(context.Background()); !errors.Is(err, recognition.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_SendAudio(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	c, _ := newController(t, p, recognition.Config{})

	if err := c.SendAudio([]byte{1}); !errors.Is(err, recognition.ErrNotListening) {
		t.Errorf("SendAudio before start = %v, want ErrNotListening", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if sess.SendAudioCallCount() != 1 {
		t.Errorf("SendAudio calls = %d, want 1", sess.SendAudioCallCount())
	}
}

func TestController_ContextCancelStops(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	c, _ := newController(t, p, recognition.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, c)
	if !sess.Closed() {
		t.Error("stream should be released on cancellation")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[recognition.State]string{
		recognition.Idle:       "idle",
		recognition.Listening:  "listening",
		recognition.Restarting: "restarting",
		recognition.Stopped:    "stopped",
		recognition.State(42):  "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	if err := recognition.DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	bad := recognition.Policy{NoSpeechDelay: -time.Second, MaxUnknownRetries: -1}
	if err := bad.Validate(); err == nil {
		t.Error("negative values should be rejected")
	}
}
