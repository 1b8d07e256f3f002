package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/observe"
)

// newStatusServer serves the scrape handler on /metrics plus /healthz and
// /readyz on addr.
func newStatusServer(addr string, scrape http.Handler, m *observe.Metrics, checks ...health.Checker) *http.Server {
	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", scrape)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveStatus runs srv until ctx is done and then shuts it down.
func serveStatus(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("status server listening", "addr", srv.Addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("status server: shutdown: %w", err)
	}
	return nil
}
