// Package httpapi exposes the identity control plane over HTTP/JSON:
// create-or-resume an identity, poll its status, fetch the pairing QR and
// tear identities down.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/server/auth"
	"github.com/dmsavelyev/chatvault/internal/session"
)

type Server struct {
	srv     *http.Server
	manager *session.Manager
	qrWait  time.Duration
	logger  logging.Logger
}

func NewServer(addr string, manager *session.Manager, qrWait time.Duration, secretKey string, logger logging.Logger) *Server {
	s := &Server{
		manager: manager,
		qrWait:  qrWait,
		logger:  logger.With("module", "httpapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /numbers", s.createNumber)
	mux.HandleFunc("GET /numbers", s.listNumbers)
	mux.HandleFunc("GET /numbers/{id}/status", s.numberStatus)
	mux.HandleFunc("GET /numbers/{id}/qr", s.numberQR)
	mux.HandleFunc("DELETE /numbers/{id}", s.deleteNumber)
	mux.HandleFunc("POST /numbers/clear", s.clearNumbers)

	handler := s.requestID(auth.Middleware(secretKey, mux))

	s.srv = &http.Server{Addr: addr, Handler: handler}
	return s
}

// requestID tags every request with a correlation id, echoed back in the
// X-Request-Id header and attached to log lines.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		s.logger.Info(r.Context(), "request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the full middleware chain; used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info(ctx, "control api listening", "addr", s.srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
