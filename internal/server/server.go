// package server hosts the local OAuth callback used by `listsync auth login`
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler is an [http.Handler] that knows the paths it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// NewRouter builds a chi router with recovery and request logging, mounting each handler on its GET routes.
func NewRouter(logger *log.Logger, handlers ...Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	for _, h := range handlers {
		for _, route := range h.Routes() {
			r.Method(http.MethodGet, route, h)
		}
	}
	return r
}

// RequestLogger logs method, path, status and duration of each request at debug level.
func RequestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			if logger != nil {
				logger.Debug("callback request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"request_id", middleware.GetReqID(r.Context()),
					"elapsed", time.Since(start))
			}
		})
	}
}

// CallbackServer runs the router on a local listener until the OAuth flow completes.
type CallbackServer struct {
	srv      *http.Server
	listener net.Listener
	oauth    *OAuthHandler
	errc     chan error
}

// NewCallbackServer listens on addr. Use port 0 to pick a free port.
func NewCallbackServer(addr string, oauth *OAuthHandler, logger *log.Logger) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &CallbackServer{
		srv:      &http.Server{Handler: NewRouter(logger, oauth), ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
		oauth:    oauth,
		errc:     make(chan error, 1),
	}, nil
}

// Addr is the address the server is listening on.
func (s *CallbackServer) Addr() string { return s.listener.Addr().String() }

// Start serves in the background.
func (s *CallbackServer) Start() {
	go func() {
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
}

// Wait blocks until the callback delivers a token, the server fails, or ctx ends.
// The server is shut down before returning.
func (s *CallbackServer) Wait(ctx context.Context) (OAuthResult, error) {
	defer s.Shutdown()

	select {
	case res := <-s.oauth.Result():
		return res, res.Error()
	case err := <-s.errc:
		return OAuthResult{}, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return OAuthResult{}, ctx.Err()
	}
}

// Shutdown stops the server, waiting up to five seconds for in-flight requests.
func (s *CallbackServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
