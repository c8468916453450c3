package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/readalong/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Language:   "hi-IN",
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "hi-IN", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "alternatives", "1", q.Get("alternatives"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	t.Parallel()
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestBuildURL_RecognitionSettings(t *testing.T) {
	t.Parallel()
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		cfg      stt.StreamConfig
		lang     string
		alts     string
		interims string
	}{
		{"config language wins", stt.StreamConfig{Language: "fr-FR", MaxAlternatives: 5}, "fr-FR", "5", "false"},
		{"alternatives clamped", stt.StreamConfig{MaxAlternatives: 50, InterimResults: true}, "en", "10", "true"},
		{"negative alternatives", stt.StreamConfig{MaxAlternatives: -1}, "en", "1", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawURL, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			q, _ := url.Parse(rawURL)
			assertEqual(t, "language", tt.lang, q.Query().Get("language"))
			assertEqual(t, "alternatives", tt.alts, q.Query().Get("alternatives"))
			assertEqual(t, "interim_results", tt.interims, q.Query().Get("interim_results"))
		})
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [
				{"transcript": "namaste duniya", "confidence": 0.95},
				{"transcript": "namaste dunia", "confidence": 0.61}
			]
		}
	}`)

	ev, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if ev.Kind != stt.EventResult {
		t.Fatalf("kind = %v, want result", ev.Kind)
	}
	if !ev.Result.IsFinal {
		t.Error("expected IsFinal=true")
	}
	if len(ev.Result.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(ev.Result.Alternatives))
	}
	assertEqual(t, "primary", "namaste duniya", ev.Result.Primary())
	assertEqual(t, "second", "namaste dunia", ev.Result.Alternatives[1].Text)
	if ev.Result.Alternatives[0].Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", ev.Result.Alternatives[0].Confidence)
	}
}

func TestParseDeepgramResponse_Partial(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"namaste","confidence":0.7}]}}`)

	ev, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Result.IsFinal {
		t.Error("expected IsFinal=false for partial result")
	}
	assertEqual(t, "text", "namaste", ev.Result.Primary())
}

func TestParseDeepgramResponse_Error(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"type":"Error","description":"upstream timeout","message":"ignored"}`)

	ev, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for Error message")
	}
	if ev.Kind != stt.EventError || ev.Code != stt.CodeNetwork {
		t.Errorf("got kind=%v code=%q, want error/network", ev.Kind, ev.Code)
	}
	assertEqual(t, "message", "upstream timeout", ev.Message)
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"metadata":           `{"type":"Metadata","request_id":"abc"}`,
		"empty alternatives": `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
		"silence":            `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		"invalid json":       `{invalid`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(raw)); ok {
				t.Errorf("expected ok=false for %s", raw)
			}
		})
	}
}

func TestDialCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		resp *http.Response
		want stt.ErrorCode
	}{
		{nil, stt.CodeNetwork},
		{&http.Response{StatusCode: http.StatusUnauthorized}, stt.CodeNotAllowed},
		{&http.Response{StatusCode: http.StatusForbidden}, stt.CodeNotAllowed},
		{&http.Response{StatusCode: http.StatusBadRequest}, stt.CodeLanguageNotSupported},
		{&http.Response{StatusCode: http.StatusBadGateway}, stt.CodeNetwork},
	}
	for _, tt := range tests {
		if got := dialCode(tt.resp); got != tt.want {
			t.Errorf("dialCode(%v) = %q, want %q", tt.resp, got, tt.want)
		}
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- Streaming tests ----

func TestStartStream_ResultsThenEnd(t *testing.T) {
	t.Parallel()
	gotAudio := make(chan []byte, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		gotAudio <- data
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ka kha","confidence":0.9}]}}`))
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	sess := startStream(t, srv)
	if err := sess.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case data := <-gotAudio:
		if len(data) != 4 {
			t.Errorf("server got %d bytes, want 4", len(data))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received audio")
	}

	ev := nextEvent(t, sess)
	if ev.Kind != stt.EventResult || ev.Result.Primary() != "ka kha" {
		t.Fatalf("first event = %+v, want result 'ka kha'", ev)
	}
	ev = nextEvent(t, sess)
	if ev.Kind != stt.EventEnd {
		t.Fatalf("second event = %+v, want end", ev)
	}
	if _, ok := <-sess.Events(); ok {
		t.Error("expected events channel to be closed after end")
	}
}

func TestStartStream_AbnormalCloseIsNetworkError(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusInternalError, "boom")
	})

	sess := startStream(t, srv)
	ev := nextEvent(t, sess)
	if ev.Kind != stt.EventError || ev.Code != stt.CodeNetwork {
		t.Fatalf("event = %+v, want network error", ev)
	}
}

func TestStartStream_Unauthorized(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.StartStream(context.Background(), stt.StreamConfig{})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if code := stt.CodeOf(err); code != stt.CodeNotAllowed {
		t.Errorf("code = %q, want %q", code, stt.CodeNotAllowed)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// Wait for CloseStream, then hang up normally.
		for {
			_, data, err := conn.Read(ctx)
			if err != nil || strings.Contains(string(data), "CloseStream") {
				return
			}
		}
	})

	sess := startStream(t, srv)
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0, 0}); !errors.Is(err, errClosed) {
		t.Errorf("SendAudio after Close = %v, want errClosed", err)
	}
	for range sess.Events() {
	}
}

// ---- helpers ----

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func startStream(t *testing.T, srv *httptest.Server) stt.SessionHandle {
	t.Helper()
	p, err := New("key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func nextEvent(t *testing.T, sess stt.SessionHandle) stt.Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return stt.Event{}
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
