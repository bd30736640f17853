// Package server exposes the admin HTTP API: event intake, relation data
// intake, and read-only status surfaces. It is the only way into the
// process; everything it accepts is funneled through the reconciler.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
	"tempocoord/pkg/topology"
)

// Reconciler consumes runtime events. Implemented by the coordinator driver
// and by the worker; the server does not care which it is fronting.
type Reconciler interface {
	Reconcile(ctx context.Context, ev reconcile.Event) (reconcile.Status, error)
	Status() reconcile.Status
}

// Inspector is the coordinator-only read surface. The worker does not
// implement it; the matching endpoints 404 in worker mode.
type Inspector interface {
	Topology(ctx context.Context) (topology.Verdict, error)
	LastPublished(ctx context.Context) (int64, string, error)
	Passes(ctx context.Context) (int64, error)
}

// Server represents the admin HTTP server
type Server struct {
	config     *config.Config
	rels       *cluster.RelationStore
	reconciler Reconciler
	registry   *prometheus.Registry

	http *http.Server
}

// NewServer creates a new server instance. registry may be nil when metrics
// are disabled.
func NewServer(cfg *config.Config, rels *cluster.RelationStore, rec Reconciler, registry *prometheus.Registry) *Server {
	server := &Server{
		config:     cfg,
		rels:       rels,
		reconciler: rec,
		registry:   registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", server.handleEvents)
	mux.HandleFunc("/v1/relations/", server.handleRelations)
	mux.HandleFunc("/v1/status", server.handleStatus)
	mux.HandleFunc("/v1/topology", server.handleTopology)
	mux.HandleFunc("/v1/config", server.handleConfig)
	mux.HandleFunc("/v1/health", server.handleHealth)
	if cfg.Metrics.Enabled && registry != nil {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	server.http = &http.Server{
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return server
}

// Handler exposes the routed HTTP handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start starts the server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	log.Printf("Starting tempocoord server on %s (%s mode)", address, s.config.Cluster.Mode)

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	return s.Stop()
}

// Stop stops the server gracefully
func (s *Server) Stop() error {
	log.Println("Stopping tempocoord server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.Println("Force stopping server...")
		return s.http.Close()
	}

	log.Println("Server stopped gracefully")
	return nil
}
