// Package server exposes the HTTP surface: health, session control, history
// and live event streams.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/voxlabs/voxd/asr"
	"github.com/voxlabs/voxd/config"
	"github.com/voxlabs/voxd/events"
	"github.com/voxlabs/voxd/history"
	"github.com/voxlabs/voxd/record"
)

// Server composes the session, lifecycle, bus and store into the external
// API. It owns no domain state of its own.
type Server struct {
	cfg       config.Config
	lifecycle *asr.Lifecycle
	session   *record.Session
	bus       *events.Bus
	store     *history.Store

	httpServer *http.Server
	origins    map[string]struct{}
}

func New(cfg config.Config, lifecycle *asr.Lifecycle, session *record.Session, bus *events.Bus, store *history.Store) *Server {
	origins := make(map[string]struct{})
	for _, o := range cfg.Origins() {
		origins[o] = struct{}{}
	}
	return &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		session:   session,
		bus:       bus,
		store:     store,
		origins:   origins,
	}
}

// Handler builds the full route table. CORS wraps the router from outside
// so preflight requests are answered even for method-mismatched routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	router.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/history/all", s.handleHistoryAll).Methods(http.MethodGet)
	router.HandleFunc("/history/{id}", s.handleHistoryDelete).Methods(http.MethodDelete)
	router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)

	return s.corsMiddleware(router)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Debug("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := s.origins[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
