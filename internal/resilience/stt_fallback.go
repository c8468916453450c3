package resilience

import (
	"context"

	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// speech-to-text backends. Each backend has its own circuit breaker. An engine
// rejecting the requested language does not count against its breaker, since
// the recognition controller reacts to that by switching languages.
type STTFallback struct {
	group   *FallbackGroup[stt.Provider]
	metrics *observe.Metrics
}

var _ stt.Provider = (*STTFallback)(nil)

// STTOption configures an [STTFallback].
type STTOption func(*STTFallback)

// WithSTTMetrics records per-provider stream starts and failures on m.
func WithSTTMetrics(m *observe.Metrics) STTOption {
	return func(f *STTFallback) {
		f.metrics = m
	}
}

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, opts ...STTOption) *STTFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = isSTTFailure
	}
	f := &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
	for _, o := range opts {
		o(f)
	}
	return f
}

func isSTTFailure(err error) bool {
	if stt.CodeOf(err).Class() == stt.ClassLanguage {
		return false
	}
	return defaultIsFailure(err)
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the provider names in failover order.
func (f *STTFallback) Names() []string {
	return f.group.Names()
}

// StartStream opens a streaming recognition session against the first healthy
// provider. If the primary fails to start the stream, subsequent fallbacks are
// tried.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(name string, p stt.Provider) (stt.SessionHandle, error) {
		h, err := p.StartStream(ctx, cfg)
		if f.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
				f.metrics.RecordProviderError(ctx, name)
			}
			f.metrics.RecordProviderRequest(ctx, name, status)
		}
		return h, err
	})
}
