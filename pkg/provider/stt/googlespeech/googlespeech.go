// Package googlespeech provides an STT provider backed by the Google Cloud
// Speech-to-Text v2 streaming API. It implements the stt.Provider interface.
//
// gRPC status codes are mapped onto the stt error vocabulary so that the
// recognition controller can apply its per-class recovery policy:
//
//	InvalidArgument (language)        → language-not-supported
//	Unavailable                       → network
//	Aborted                           → aborted (stream duration limits end the stream instead)
//	PermissionDenied, Unauthenticated → not-allowed
//	DeadlineExceeded, OutOfRange      → no-speech
//	io.EOF                            → end of stream
package googlespeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

const (
	defaultLocation = "global"
	defaultModel    = "long"
	endpointPort    = 443
	maxAlternatives = 30

	// closeTimeout bounds how long Close waits for the server to flush the
	// remaining results after the send side was closed.
	closeTimeout = 2 * time.Second
)

// Config holds the connection settings for Google Cloud Speech-to-Text.
type Config struct {
	// ProjectID is the Google Cloud project that owns the implicit recognizer.
	ProjectID string

	// Location is the regional endpoint, e.g. "global" or "europe-west4".
	Location string

	// Model is the recognition model, e.g. "long" or "chirp_2".
	Model string

	// CredentialsJSON is a service account key. When empty, Application
	// Default Credentials are used.
	CredentialsJSON string
}

// stream is the subset of speechpb.Speech_StreamingRecognizeClient the
// session uses.
type stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text v2.
type Provider struct {
	cfg    Config
	open   func(ctx context.Context) (stream, error)
	closer io.Closer
}

// New creates a Provider and its underlying gRPC client. ProjectID must be
// non-empty. Call Close to release the client.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.ProjectID == "" {
		return nil, errors.New("googlespeech: project ID must not be empty")
	}

	detect := &credentials.DetectOptions{
		Scopes: []string{"https://www.googleapis.com/auth/cloud-platform"},
	}
	if cfg.CredentialsJSON != "" {
		detect.CredentialsJSON = []byte(cfg.CredentialsJSON)
	}
	creds, err := credentials.DetectDefault(detect)
	if err != nil {
		return nil, fmt.Errorf("googlespeech: detect credentials: %w", err)
	}

	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if cfg.Location != defaultLocation {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", cfg.Location, endpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googlespeech: new client: %w", err)
	}

	return &Provider{
		cfg: cfg,
		open: func(ctx context.Context) (stream, error) {
			return client.StreamingRecognize(ctx)
		},
		closer: client,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.Location == "" {
		c.Location = defaultLocation
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	return c
}

// Close releases the gRPC client.
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// StartStream opens a streaming recognition session and sends the
// recognition config as the first request.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	sctx, cancel := context.WithCancel(ctx)
	st, err := p.open(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("googlespeech: open stream: %w", classify(err))
	}
	if err := st.Send(p.configRequest(cfg)); err != nil {
		_ = st.CloseSend()
		cancel()
		return nil, fmt.Errorf("googlespeech: send config: %w", classify(err))
	}

	sess := &session{
		stream:   st,
		cancel:   cancel,
		events:   make(chan stt.Event, 64),
		done:     make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	go sess.recvLoop()
	return sess, nil
}

// configRequest builds the initial StreamingRecognizeRequest for cfg.
func (p *Provider) configRequest(cfg stt.StreamConfig) *speechpb.StreamingRecognizeRequest {
	channels := max(cfg.Channels, 1)
	alts := min(max(cfg.MaxAlternatives, 1), maxAlternatives)

	return &speechpb.StreamingRecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", p.cfg.ProjectID, p.cfg.Location),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         p.cfg.Model,
					LanguageCodes: []string{cfg.Language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(cfg.SampleRate),
							AudioChannelCount: int32(channels),
						},
					},
					Features: &speechpb.RecognitionFeatures{
						MaxAlternatives: int32(alts),
					},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{
					InterimResults: cfg.InterimResults,
				},
			},
		},
	}
}

// ---- session ----

var errClosed = errors.New("googlespeech: session is closed")

type session struct {
	mu     sync.Mutex
	closed bool
	stream stream
	cancel context.CancelFunc

	events   chan stt.Event
	done     chan struct{}
	recvDone chan struct{}
	once     sync.Once
}

// SendAudio forwards a PCM chunk to the stream.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
	})
	if err != nil {
		return fmt.Errorf("googlespeech: send audio: %w", err)
	}
	return nil
}

// Events returns the ordered event stream.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close half-closes the stream, waits briefly for the receiver to drain and
// then cancels the stream context.
func (s *session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		_ = s.stream.CloseSend()
		s.mu.Unlock()

		select {
		case <-s.recvDone:
		case <-time.After(closeTimeout):
		}
		s.cancel()
		<-s.recvDone
	})
	return nil
}

func (s *session) recvLoop() {
	defer close(s.events)
	defer close(s.recvDone)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if ev, ok := terminalEvent(err); ok {
				s.emit(ev)
			}
			return
		}
		for _, ev := range resultEvents(resp) {
			if !s.emit(ev) {
				return
			}
		}
	}
}

func (s *session) emit(ev stt.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// resultEvents converts every result in resp that carries at least one
// non-empty alternative into an EventResult.
func resultEvents(resp *speechpb.StreamingRecognizeResponse) []stt.Event {
	var out []stt.Event
	for _, r := range resp.GetResults() {
		alts := make([]stt.Alternative, 0, len(r.GetAlternatives()))
		for _, a := range r.GetAlternatives() {
			if a.GetTranscript() == "" {
				continue
			}
			alts = append(alts, stt.Alternative{Text: a.GetTranscript(), Confidence: float64(a.GetConfidence())})
		}
		if len(alts) == 0 {
			continue
		}
		out = append(out, stt.Event{
			Kind:   stt.EventResult,
			Result: stt.Result{Alternatives: alts, IsFinal: r.GetIsFinal()},
		})
	}
	return out
}

// terminalEvent maps the error that ended a Recv loop to the event reported
// to the consumer. Cancellation reports nothing.
func terminalEvent(err error) (stt.Event, bool) {
	if errors.Is(err, io.EOF) || isDurationLimit(err) {
		return stt.EndEvent(), true
	}
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return stt.Event{}, false
	}
	return stt.ErrorEvent(codeFor(err), messageOf(err)), true
}

// classify wraps err in an *stt.EngineError carrying its mapped code.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &stt.EngineError{Code: codeFor(err), Err: err}
}

// codeFor maps a gRPC error onto the stt error vocabulary. Errors without a
// gRPC status are treated as transport failures.
func codeFor(err error) stt.ErrorCode {
	st, ok := status.FromError(err)
	if !ok {
		return stt.CodeNetwork
	}
	switch st.Code() {
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "language") {
			return stt.CodeLanguageNotSupported
		}
		return stt.ErrorCode("invalid-argument")
	case codes.Unavailable:
		return stt.CodeNetwork
	case codes.Aborted:
		return stt.CodeAborted
	case codes.PermissionDenied, codes.Unauthenticated:
		return stt.CodeNotAllowed
	case codes.DeadlineExceeded, codes.OutOfRange:
		return stt.CodeNoSpeech
	default:
		return stt.ErrorCode(strings.ToLower(st.Code().String()))
	}
}

// isDurationLimit reports whether err is the server ending a stream that hit
// its maximum duration or idled without audio. Such streams are restarted
// rather than treated as failures.
func isDurationLimit(err error) bool {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration") ||
		strings.Contains(msg, "stream timed out")
}

func messageOf(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}
