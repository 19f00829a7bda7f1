package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/lensvcm/internal/override"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr      string
	handlers  *Handlers
	telemetry *TelemetryHandler
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, acts Actuators, ov *override.Store) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	return &Server{
		addr:      addr,
		handlers:  NewHandlers(broadcaster, acts, ov, subFS),
		telemetry: &TelemetryHandler{Actuators: acts, Interval: DefaultTelemetryInterval},
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/actuators", s.handlers.HandleList).Methods(http.MethodGet)
	a := r.PathPrefix("/actuators/{sensor:[0-9]+}/{place:[0-9]+}").Subrouter()
	a.HandleFunc("/status", s.handlers.HandleStatus).Methods(http.MethodGet)
	a.HandleFunc("/position", s.handlers.HandlePosition).Methods(http.MethodPost)
	a.HandleFunc("/init", s.handlers.HandleInit).Methods(http.MethodPost)
	a.HandleFunc("/softland", s.handlers.HandleSoftLand).Methods(http.MethodPost)

	r.HandleFunc("/debug/override", s.handlers.HandleGetOverride).Methods(http.MethodGet)
	r.HandleFunc("/debug/override", s.handlers.HandlePutOverride).Methods(http.MethodPut)

	r.HandleFunc("/status/stream", s.handlers.HandleStatusStream).Methods(http.MethodGet)
	r.Handle("/ws", s.telemetry)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	r.HandleFunc("/", s.handlers.ServeIndex).Methods(http.MethodGet)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
