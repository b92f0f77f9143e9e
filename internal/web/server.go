// Package web serves the notes viewer: a JSON API over the notes backend,
// review state and practice sessions, plus the embedded browser page.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/conorfennell/notedeck/internal/notes"
	"github.com/conorfennell/notedeck/internal/practice"
	"github.com/conorfennell/notedeck/internal/review"
)

//go:embed all:static
var staticFiles embed.FS

// Deps are the collaborators of a Server.
type Deps struct {
	Notes    *notes.Client
	Tracker  *review.Tracker
	Practice practice.Options
	Logger   *slog.Logger
	Now      func() time.Time // defaults to time.Now
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	notes    *notes.Client
	tracker  *review.Tracker
	practice practice.Options
	log      *slog.Logger
	now      func() time.Time

	router   *mux.Router
	markdown goldmark.Markdown
	sessions *registry
}

// NewServer creates and configures a new server.
func NewServer(d Deps) *Server {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		notes:    d.Notes,
		tracker:  d.Tracker,
		practice: d.Practice,
		log:      d.Logger.With("component", "web"),
		now:      now,
		router:   mux.NewRouter(),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		sessions: newRegistry(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(requestID, logRequests(s.log), recovery(s.log))

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/notes", s.handleListNotes()).Methods(http.MethodGet)
	api.HandleFunc("/notes/content", s.handleNoteContent()).Methods(http.MethodGet)
	api.HandleFunc("/review", s.handleReview()).Methods(http.MethodGet)

	api.HandleFunc("/practice", s.handleStartPractice()).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}", s.handleGetPractice()).Methods(http.MethodGet)
	api.HandleFunc("/practice/{id}", s.handleClosePractice()).Methods(http.MethodDelete)
	api.HandleFunc("/practice/{id}/answer", s.handleAnswer()).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/reveal", s.handleReveal()).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/next", s.handleStep(practiceNext)).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/prev", s.handleStep(practicePrev)).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/finish", s.handleStep(practiceFinish)).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/retry", s.handleRetry()).Methods(http.MethodPost)
	api.HandleFunc("/practice/{id}/complete", s.handleComplete()).Methods(http.MethodPost)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("web: static assets: %v", err))
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)
}

// CloseSessions discards every open practice session.
func (s *Server) CloseSessions() {
	s.sessions.closeAll()
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.CloseSessions()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
