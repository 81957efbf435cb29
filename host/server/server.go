// Package server exposes a running controller over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ssrpwm/core"
	"ssrpwm/host/events"
	"ssrpwm/host/runtime"
	"ssrpwm/protocol"
)

// Version is the build version reported by /api/version
var Version = "dev"

// Server serves the HTTP API
type Server struct {
	rt      *runtime.Runtime
	bus     *events.Bus
	metrics http.Handler
	log     zerolog.Logger
}

// New creates a server. bus and metrics may be nil to disable /ws and
// /metrics.
func New(rt *runtime.Runtime, bus *events.Bus, metrics http.Handler, log zerolog.Logger) *Server {
	return &Server{
		rt:      rt,
		bus:     bus,
		metrics: metrics,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// SetupMux builds the router:
// - Prometheus metric endpoint
// - Websocket streaming state change events
// - Status snapshot and command execution
// - Version for programmatic use
func (s *Server) SetupMux() *mux.Router {
	r := mux.NewRouter()

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.bus != nil {
		r.HandleFunc("/ws", s.WebsocketHandler)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", s.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/command", s.CommandHandler).Methods(http.MethodPost)
	api.Use(s.logMiddleware)

	return r
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":  Version,
		"protocol": protocol.Version,
	})
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.rt.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CommandReply is the response body of /api/command
type CommandReply struct {
	Reply string `json:"reply"`
}

// CommandHandler executes the command line in the request body
func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, protocol.LineMax+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > protocol.LineMax {
		writeError(w, http.StatusRequestEntityTooLarge, protocol.ErrLineTooLong)
		return
	}

	reply, err := s.rt.Exec(r.Context(), strings.TrimSpace(string(body)))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CommandReply{Reply: reply})
	case errors.Is(err, runtime.ErrStopped), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, core.ErrUnknownCommand):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
