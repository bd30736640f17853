package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
	"tempocoord/pkg/server"
	"tempocoord/pkg/worker"
	"tempocoord/storage"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	dataDir    = flag.String("data-dir", "./data", "Data directory")
	port       = flag.Int("port", 9000, "Server port")
	host       = flag.String("host", "localhost", "Server host")
	mode       = flag.String("mode", "", "Process mode: coordinator or worker")
	role       = flag.String("role", "", "Worker role (worker mode only)")
	address    = flag.String("address", "", "Advertised unit address")
	tick       = flag.Duration("tick", 5*time.Minute, "Periodic re-evaluation interval (0 disables)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		cfg = config.GetDefaultConfig()
		log.Printf("Using default configuration: %v", err)
	}

	// Override config with command line flags
	if *dataDir != "./data" {
		cfg.Storage.DataDir = *dataDir
	}
	if *port != 9000 {
		cfg.Server.Port = *port
	}
	if *host != "localhost" {
		cfg.Server.Host = *host
	}
	if *mode != "" {
		cfg.Cluster.Mode = *mode
	}
	if *role != "" {
		cfg.Cluster.Role = *role
	}
	if *address != "" {
		cfg.Cluster.Address = *address
	}

	// Initialize storage
	store, err := storage.NewBadgerStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
	}

	var metrics *reconcile.Metrics
	if registry != nil {
		metrics = reconcile.NewMetrics(registry)
	}

	var rec server.Reconciler
	switch cfg.Cluster.Mode {
	case "coordinator":
		driver := reconcile.New(store, cfg, serverName(cfg), metrics)
		if err := loadDashboards(ctx, driver, cfg.Tempo.DashboardsDir); err != nil {
			log.Printf("Failed to load dashboards: %v", err)
		}
		rec = driver
	case "worker":
		rec = worker.New(store, cfg)
	default:
		log.Fatalf("Unknown mode %q, expected coordinator or worker", cfg.Cluster.Mode)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// First pass before serving, so status is never the startup placeholder
	if _, err := rec.Reconcile(ctx, reconcile.Event{Kind: reconcile.KindStart}); err != nil {
		log.Fatalf("Startup reconciliation failed: %v", err)
	}

	if *tick > 0 {
		go runTicker(ctx, rec, *tick)
	}

	srv := server.NewServer(cfg, cluster.NewRelationStore(store), rec, registry)

	log.Printf("Starting tempocoord %s on %s:%d", cfg.Cluster.Mode, cfg.Server.Host, cfg.Server.Port)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	// ctx is cancelled by now; withdraw with a fresh one so the coordinator
	// stops counting this unit after a clean stop.
	if wk, ok := rec.(*worker.Worker); ok {
		if err := wk.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to withdraw unit declaration: %v", err)
		}
	}

	log.Println("tempocoord stopped")
}

// serverName is the host this coordinator is reachable as, used for TLS SNI
// and as the fallback external host.
func serverName(cfg *config.Config) string {
	if cfg.Cluster.Address != "" {
		return cfg.Cluster.Address
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}

// runTicker delivers periodic re-evaluation events until ctx is cancelled.
func runTicker(ctx context.Context, rec server.Reconciler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rec.Reconcile(ctx, reconcile.Event{Kind: reconcile.KindTick}); err != nil {
				log.Printf("Tick reconciliation failed: %v", err)
			}
		}
	}
}

// loadDashboards caches dashboard assets from dir into the store so they can
// be forwarded on dashboard relations. A missing directory is not an error.
func loadDashboards(ctx context.Context, driver *reconcile.Driver, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	blobs := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		blobs[entry.Name()] = blob
	}
	if len(blobs) == 0 {
		return nil
	}
	log.Printf("Loaded %d dashboard asset(s) from %s", len(blobs), dir)
	return driver.LoadAssets(ctx, blobs)
}
