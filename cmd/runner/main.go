// Package main is the entry point for the beaconci runner.
// The runner is the agent that claims pending runs from the queue and
// executes their stages. It owns concurrency, timeouts, workspace
// lifecycle and log/artifact shipping.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"beaconci/internal/config"
	"beaconci/internal/logger"
	"beaconci/internal/observability"
	"beaconci/internal/runner"
	"beaconci/internal/store/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: beaconci.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "beaconci-runner", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// The runner claims work straight from the queue tables.
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	// Select runtime based on configuration. The shell runtime is
	// always available; container stages need the docker backend.
	var containers runner.Runtime
	switch cfg.Runtime {
	case "docker":
		dockerRT, err := runner.NewContainerRuntime()
		if err != nil {
			log.Fatalf("Failed to create container runtime: %v", err)
		}
		containers = dockerRT
		log.Println("Container runtime: docker")
	default:
		log.Println("Container runtime: disabled (shell only)")
	}

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

	engine := runner.NewEngine(runner.NewShellRuntime(), containers, logger.New())

	agent := runner.New(db, engine, runner.AgentConfig{
		Node:              cfg.RunnerNode,
		Labels:            cfg.RunnerLabels,
		Concurrency:       cfg.RunnerConcurrency,
		PollInterval:      cfg.RunnerPollInterval,
		ControllerURL:     cfg.ControllerURL,
		MaxBackoff:        cfg.RunnerMaxBackoff,
		HeartbeatInterval: cfg.RunnerHeartbeatInterval,
		WorkRoot:          cfg.RunnerWorkRoot,
		AuthToken:         cfg.AuthToken,
		Metrics:           runMetrics,
	})

	go agent.Run(ctx)

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Runner metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down runner...")
	cancel()

	<-agent.Done()
}
