// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves metrics, health, state and the live feed
type Server struct {
	addr     string
	state    *State
	hub      *Hub
	gatherer prometheus.Gatherer
}

// NewServer creates a server listening on addr
func NewServer(addr string, state *State, hub *Hub, gatherer prometheus.Gatherer) *Server {
	return &Server{addr: addr, state: state, hub: hub, gatherer: gatherer}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/state", s.handleState)
	r.Handle("/ws", s.hub)
	return r
}

// handleHealth is 200 while the probe link is up, 503 otherwise
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, seq := s.state.Snapshot()
	if seq == 0 || !snap.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.state.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("[vibmon] Error encoding state: %v", err)
	}
}

// ListenAndServe runs the hub and HTTP server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[vibmon] HTTP server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
