// Package proxy re-exposes p2 repository sessions as flat Maven repositories
// over plain HTTP. Each configured repository is served under its id:
//
//	GET /                                             configured repositories
//	GET /{repo}/bundles                               id:version lines
//	GET /{repo}/{group...}/{a}/maven-metadata.xml     synthesized metadata
//	GET /{repo}/{group...}/{a}/{v}/{a}-{v}[-{c}].{e}  artifacts and side-files
package proxy

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ShutdownTimeout bounds how long in-flight requests may run after the
// serving context is cancelled.
const ShutdownTimeout = 10 * time.Second

// Session is the part of layout.Session the proxy serves from.
type Session interface {
	ID() string
	GroupID() string
	Repository() *p2.Repository
	Bundles(ctx context.Context) ([]*p2.Bundle, error)
	Locate(ctx context.Context, a maven.Artifact) (*url.URL, error)
	LocateMetadata(ctx context.Context, md maven.Metadata) (*url.URL, error)
	Checksums(ctx context.Context, a maven.Artifact) ([]layout.Checksum, error)
	Close() error
}

// Server routes Maven repository requests onto long-lived sessions.
type Server struct {
	sessions map[string]Session
	order    []string
	opener   fetch.Opener
	router   chi.Router

	mu     sync.Mutex
	closed bool
}

// New creates a server over sessions. Located files are read through opener.
// When two sessions share an id the first one is served.
func New(sessions []Session, opener fetch.Opener) *Server {
	s := &Server{
		sessions: make(map[string]Session, len(sessions)),
		opener:   opener,
	}
	for _, sess := range sessions {
		if _, dup := s.sessions[sess.ID()]; dup {
			logger.Warn("Ignoring duplicate repository id", logger.Fields{"id": sess.ID()})
			continue
		}
		s.sessions[sess.ID()] = sess
		s.order = append(s.order, sess.ID())
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/", s.ListHandler)
	r.Get("/{repo}/bundles", s.BundlesHandler)
	r.Get("/{repo}/*", s.FileHandler)
	r.Head("/{repo}/*", s.FileHandler)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return r
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests and closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Proxy listening", logger.Fields{"address": addr, "repositories": len(s.order)})
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}
	if stderrors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes every session. Later requests are answered with 503.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, id := range s.order {
		if err := s.sessions[id].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Debug("Closed proxy sessions", logger.Fields{"sessions": len(s.order)})
	return stderrors.Join(errs...)
}

func (s *Server) session(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrClosed
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "repository %s", id)
	}
	return sess, nil
}

// logRequests logs one line per request after it completes.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("Handled request", logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrClosed):
		status = http.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrTransfer), stderrors.Is(err, errors.ErrMalformedDocument):
		status = http.StatusBadGateway
	case stderrors.Is(err, context.Canceled):
		return
	}
	if status != http.StatusNotFound {
		logger.Warn("Request failed", logger.Fields{"status": status, "error": err.Error()})
	}
	http.Error(w, http.StatusText(status), status)
}
