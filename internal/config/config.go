// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken         string
	ListenAddr          string
	DBPath              string
	PollInterval        time.Duration
	PollMaxInterval     time.Duration
	RateFloor           int
	LeaseTTL            time.Duration
	CollaboratorTimeout time.Duration
}

// HasGitHubCredentials returns true when GitHubToken is non-empty. The
// composition root starts the poller only when credentials are present;
// without them the API still serves but no remote calls happen.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// CREWBOT_GITHUB_TOKEN is optional; if absent, the app starts but polling and
// dispatch against the remote are inactive. Optional variables with defaults:
// CREWBOT_LISTEN_ADDR (127.0.0.1:8080), CREWBOT_DB_PATH (crewbot.db),
// CREWBOT_POLL_INTERVAL (5m), CREWBOT_POLL_MAX_INTERVAL (30m),
// CREWBOT_RATE_FLOOR (200), CREWBOT_LEASE_TTL (2m),
// CREWBOT_COLLABORATOR_TIMEOUT (30s).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:         os.Getenv("CREWBOT_GITHUB_TOKEN"),
		ListenAddr:          "127.0.0.1:8080",
		DBPath:              "crewbot.db",
		PollInterval:        5 * time.Minute,
		PollMaxInterval:     30 * time.Minute,
		RateFloor:           200,
		LeaseTTL:            2 * time.Minute,
		CollaboratorTimeout: 30 * time.Second,
	}

	if v, ok := os.LookupEnv("CREWBOT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CREWBOT_DB_PATH"); ok {
		cfg.DBPath = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"CREWBOT_POLL_INTERVAL", &cfg.PollInterval},
		{"CREWBOT_POLL_MAX_INTERVAL", &cfg.PollMaxInterval},
		{"CREWBOT_LEASE_TTL", &cfg.LeaseTTL},
		{"CREWBOT_COLLABORATOR_TIMEOUT", &cfg.CollaboratorTimeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.name, v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %q", d.name, v)
		}
		*d.dst = parsed
	}

	if v, ok := os.LookupEnv("CREWBOT_RATE_FLOOR"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("CREWBOT_RATE_FLOOR must be a non-negative integer, got %q", v)
		}
		cfg.RateFloor = parsed
	}

	if cfg.PollMaxInterval < cfg.PollInterval {
		return nil, fmt.Errorf("CREWBOT_POLL_MAX_INTERVAL (%s) must not be shorter than CREWBOT_POLL_INTERVAL (%s)",
			cfg.PollMaxInterval, cfg.PollInterval)
	}

	return cfg, nil
}
