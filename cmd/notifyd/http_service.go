package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/devshad-01/social-task-sub000/internal/logging"
)

// httpService runs an http.Server under the supervisor.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func newHTTPService(server *http.Server, shutdownTimeout time.Duration) *httpService {
	return &httpService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", h.server.Addr).Msg("HTTP server listening")
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The serve context is already cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string {
	return "http-server"
}
