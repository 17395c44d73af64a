// Package server provides the HTTP transport for the gateway: the single
// ingestion endpoint, health and metrics endpoints, and listener lifecycle.
// All admission decisions live in the gate engine; this layer only parses
// requests and maps outcomes to status codes.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gatewall/relay/internal/gate"
	"github.com/gatewall/relay/internal/metrics"
)

// Config holds tunable parameters for the HTTP server.
type Config struct {
	ListenAddr   string        // address to listen on, e.g. ":8080"
	ReadTimeout  time.Duration // timeout for reading the full request
	WriteTimeout time.Duration // timeout for writing the response
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Server serves the ingestion endpoint over plain HTTP.
type Server struct {
	config     Config
	gate       *gate.GateKeeper
	throttle   Throttler // optional
	db         *sql.DB   // health check only
	httpServer *http.Server
}

// New creates a Server. throttle may be nil to run without an inbound
// request ceiling; db may be nil to make /healthz unconditionally OK.
func New(config Config, gk *gate.GateKeeper, throttle Throttler, db *sql.DB) *Server {
	s := &Server{
		config:   config,
		gate:     gk,
		throttle: throttle,
		db:       db,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleInbound)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called; a clean shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("[server] listening on %s", s.config.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports liveness, pinging the store when one is attached.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	fmt.Fprintln(w, "ok")
}
