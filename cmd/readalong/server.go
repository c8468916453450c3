package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/readalong/internal/health"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/internal/recognition"
)

// newServer builds the operational HTTP server: liveness, readiness gated on
// the recognition stream, and Prometheus metrics.
func newServer(addr string, rt *runtime, sess *practice.Session, logger *slog.Logger) *http.Server {
	checks := health.New(health.Checker{
		Name: "recognition",
		Check: func(context.Context) error {
			if st := sess.RecognitionState(); st != recognition.Listening {
				return fmt.Errorf("recognition is %s", st)
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(rt.metrics, logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("operational server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("operational server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("operational server shutdown: %w", err)
	}
	return nil
}
