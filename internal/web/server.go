package web

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/snapsort/internal/records"
	"github.com/zombor/snapsort/internal/session"
)

// Session is the part of the session controller the UI drives
type Session interface {
	UploadFrom(filename string, r io.Reader) (session.Snapshot, error)
	EditField(name, value string) (session.Snapshot, error)
	SetMemo(memo string) (session.Snapshot, error)
	Commit(ctx context.Context) (session.Snapshot, error)
	Discard() (session.Snapshot, error)
	Snapshot() (session.Snapshot, error)
}

// Previewer renders a display-sized copy of a managed image
type Previewer interface {
	WritePreview(managedPath string, w io.Writer) error
}

// Server serves the local UI and its JSON API
type Server struct {
	session   Session
	store     records.Store
	previewer Previewer
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(sess Session, store records.Store, previewer Previewer, basicAuth BasicAuth) *Server {
	return NewServerWithMux(sess, store, previewer, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(sess Session, store records.Store, previewer Previewer, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		session:   sess,
		store:     store,
		previewer: previewer,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="snapsort"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withCORS answers preflight requests and sets CORS headers on everything else
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	// staged upload
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("GET /api/session/preview", s.requireAuth(s.handlePreview))
	s.mux.HandleFunc("POST /api/session/upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("PUT /api/session/fields", s.requireAuth(s.handleEditField))
	s.mux.HandleFunc("PUT /api/session/memo", s.requireAuth(s.handleSetMemo))
	s.mux.HandleFunc("POST /api/session/commit", s.requireAuth(s.handleCommit))
	s.mux.HandleFunc("POST /api/session/discard", s.requireAuth(s.handleDiscard))

	// history
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("GET /api/business-cards", s.requireAuth(s.handleListBusinessCards))
	s.mux.HandleFunc("GET /api/export.xlsx", s.requireAuth(s.handleExport))

	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.withCORS(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withCORS(s.mux).ServeHTTP(w, r)
}
