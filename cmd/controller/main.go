// Package main is the entry point for the beaconci controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beaconci/internal/auth"
	"beaconci/internal/config"
	"beaconci/internal/controller"
	"beaconci/internal/controller/handlers"
	"beaconci/internal/logger"
	"beaconci/internal/observability"
	"beaconci/internal/pipeline"
	"beaconci/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	genTokenFlag := flag.Bool("gen-token", false, "Print a fresh bearer token and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *genTokenFlag {
		token, err := auth.GenerateToken()
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Pipeline definitions: built-ins plus any local overrides.
	registry, err := pipeline.NewRegistry(cfg.PipelineDir)
	if err != nil {
		log.Fatalf("Failed to load pipeline definitions: %v", err)
	}
	log.Printf("Loaded pipelines: %s", registry.Names())

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "beaconci-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	runMetrics, err := observability.NewRunMetrics()
	if err != nil {
		log.Fatalf("Failed to create run metrics: %v", err)
	}

	// Queue depth is queried from the DB only when scraped.
	if err := observability.RegisterQueueDepth(store.Count); err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	if cfg.AuthToken != "" {
		log.Printf("Auth enabled (token fingerprint %s)", auth.Fingerprint(cfg.AuthToken))
	} else {
		log.Println("Auth disabled: no auth_token configured")
	}

	h := handlers.New(store, registry, cfg.ArtifactDir, slogger, runMetrics)

	// Background maintenance: global-deadline backstop and retention.
	maintainer := controller.NewMaintainer(store, registry, slogger)
	maintainer.ReaperInterval = cfg.ReaperInterval
	maintainer.RetentionInterval = cfg.RetentionInterval

	maintCtx, stopMaint := context.WithCancel(ctx)
	defer stopMaint()
	go maintainer.Run(maintCtx)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, controller.Options{
		AuthToken:      cfg.AuthToken,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		MetricsHandler: metricsHandler,
	})

	go func() {
		log.Printf("BeaconCI Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	stopMaint()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
