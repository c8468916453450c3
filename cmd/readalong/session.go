package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/internal/reading"
	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// version is reported in telemetry. Overridden at link time.
var version = "dev"

// providerHandle is the recognizer a session runs against. exhausted, when
// non-nil, is closed once a scripted provider has nothing left to play.
type providerHandle struct {
	provider  stt.Provider
	exhausted <-chan struct{}
}

type sessionParams struct {
	cfg     *config.Config
	opts    *options
	passage string
	source  audio.Source
	logger  *slog.Logger
	out     io.Writer

	buildProvider func(*runtime) (providerHandle, error)
}

// runtime carries the process-wide telemetry wiring for one invocation.
type runtime struct {
	registry *prometheus.Registry
	metrics  *observe.Metrics
}

func (rt *runtime) sttOptions() []resilience.STTOption {
	return []resilience.STTOption{resilience.WithSTTMetrics(rt.metrics)}
}

// runSession wires telemetry, the optional HTTP server and one practice
// session, then prints the outcome to p.out.
func runSession(ctx context.Context, p sessionParams) error {
	reg := prometheus.NewRegistry()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     reg,
		SampleRatio:    p.cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			p.logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	rt := &runtime{registry: reg, metrics: metrics}

	handle, err := p.buildProvider(rt)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}
	if c, ok := handle.provider.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	rep := newReporter(p.out, p.opts.output)
	opts := []practice.Option{
		practice.WithLogger(p.logger),
		practice.WithMetrics(metrics),
		practice.WithListener(rep),
	}
	if p.source != nil {
		opts = append(opts, practice.WithAudioSource(p.source))
	}
	sess, err := practice.New(p.cfg.PracticeConfig(p.passage), handle.provider, opts...)
	if err != nil {
		return err
	}
	rep.passage = sess.Passage()

	g, gctx := errgroup.WithContext(ctx)
	// sessCtx ends when the session does, releasing the helpers below.
	sessCtx, sessionDone := context.WithCancel(gctx)
	defer sessionDone()

	if addr := p.cfg.Server.ListenAddr; addr != "" {
		srv := newServer(addr, rt, sess, p.logger)
		g.Go(func() error { return serve(sessCtx, srv, p.logger) })
	}

	if handle.exhausted != nil {
		g.Go(func() error {
			select {
			case <-handle.exhausted:
				p.logger.Debug("replay script exhausted")
				sess.Stop()
			case <-sessCtx.Done():
			}
			return nil
		})
	}

	var summary reading.Summary
	g.Go(func() error {
		defer sessionDone()
		sum, err := sess.Run(gctx)
		summary = sum
		return err
	})

	runErr := g.Wait()
	if err := rep.finish(sess.ID(), sess.States(), summary); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
