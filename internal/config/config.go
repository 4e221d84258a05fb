// Package config handles configuration loading for the controller,
// the runner agent and the CLI. Values come from an optional config
// file plus environment variables, env wins.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// URL of the controller (e.g., "http://localhost:6161")
	ControllerURL string

	// Bearer token shared between the CLI, runners and the controller.
	// Empty disables authentication (local development).
	AuthToken string

	// Directory with extra pipeline definitions, merged over the
	// built-in ones.
	PipelineDir string

	// Directory where the controller stores uploaded artifact archives.
	ArtifactDir string

	// How often the controller prunes old logs and artifacts.
	RetentionInterval time.Duration

	// How often the controller fails runs past their global deadline.
	ReaperInterval time.Duration

	// Requests per second allowed per client on the public API.
	RateLimit float64
	RateBurst int

	// Runner-specific configuration
	RunnerNode              string
	RunnerLabels            []string
	RunnerConcurrency       int
	RunnerPollInterval      time.Duration
	RunnerMaxBackoff        time.Duration
	RunnerHeartbeatInterval time.Duration
	RunnerWorkRoot          string

	// Runtime selects how stage commands execute: "shell" or "docker".
	Runtime string

	// OTLP endpoint for trace export
	OTELEndpoint string
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	hostname, _ := os.Hostname()

	v.SetDefault("http_port", 6161)
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("artifact_dir", filepath.Join(os.TempDir(), "beaconci", "artifacts"))
	v.SetDefault("retention_interval", "1h")
	v.SetDefault("reaper_interval", "1m")
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_burst", 20)
	v.SetDefault("runner_node", hostname)
	v.SetDefault("runner_concurrency", 1)
	v.SetDefault("runner_poll_interval", "1s")
	v.SetDefault("runner_max_backoff", "30s")
	v.SetDefault("runner_heartbeat_interval", "30s")
	v.SetDefault("runner_work_root", filepath.Join(os.TempDir(), "beaconci"))
	v.SetDefault("runtime", "shell")
	v.SetDefault("otel_endpoint", "localhost:4317")

	// Env names keep their conventional spellings.
	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("http_port", "PORT")
	v.BindEnv("controller_url", "CONTROLLER_URL")
	v.BindEnv("auth_token", "AUTH_TOKEN")
	v.BindEnv("pipeline_dir", "PIPELINE_DIR")
	v.BindEnv("artifact_dir", "ARTIFACT_DIR")
	v.BindEnv("retention_interval", "RETENTION_INTERVAL")
	v.BindEnv("reaper_interval", "REAPER_INTERVAL")
	v.BindEnv("rate_limit", "RATE_LIMIT")
	v.BindEnv("rate_burst", "RATE_BURST")
	v.BindEnv("runner_node", "RUNNER_NODE")
	v.BindEnv("runner_labels", "RUNNER_LABELS")
	v.BindEnv("runner_concurrency", "RUNNER_CONCURRENCY")
	v.BindEnv("runner_poll_interval", "RUNNER_POLL_INTERVAL")
	v.BindEnv("runner_max_backoff", "RUNNER_MAX_BACKOFF")
	v.BindEnv("runner_heartbeat_interval", "RUNNER_HEARTBEAT_INTERVAL")
	v.BindEnv("runner_work_root", "RUNNER_WORK_ROOT")
	v.BindEnv("runtime", "RUNTIME")
	v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if v.GetString("database_url") == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	cfg := &Config{
		DatabaseURL:             v.GetString("database_url"),
		HTTPPort:                v.GetInt("http_port"),
		ControllerURL:           v.GetString("controller_url"),
		AuthToken:               v.GetString("auth_token"),
		PipelineDir:             v.GetString("pipeline_dir"),
		ArtifactDir:             v.GetString("artifact_dir"),
		RetentionInterval:       v.GetDuration("retention_interval"),
		ReaperInterval:          v.GetDuration("reaper_interval"),
		RateLimit:               v.GetFloat64("rate_limit"),
		RateBurst:               v.GetInt("rate_burst"),
		RunnerNode:              v.GetString("runner_node"),
		RunnerLabels:            v.GetStringSlice("runner_labels"),
		RunnerConcurrency:       v.GetInt("runner_concurrency"),
		RunnerPollInterval:      v.GetDuration("runner_poll_interval"),
		RunnerMaxBackoff:        v.GetDuration("runner_max_backoff"),
		RunnerHeartbeatInterval: v.GetDuration("runner_heartbeat_interval"),
		RunnerWorkRoot:          v.GetString("runner_work_root"),
		Runtime:                 v.GetString("runtime"),
		OTELEndpoint:            v.GetString("otel_endpoint"),
	}

	if cfg.Runtime != "shell" && cfg.Runtime != "docker" {
		return nil, fmt.Errorf("invalid runtime %q: must be shell or docker", cfg.Runtime)
	}

	return cfg, nil
}
