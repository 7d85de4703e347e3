package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// WebhookConfig holds notification webhook settings.
type WebhookConfig struct {
	URL        string
	RatePerSec float64
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server  ServerConfig
	Webhook WebhookConfig

	StateDir      string
	LogLevel      string
	UseUTC        bool
	TickInterval  time.Duration
	ShutdownGrace time.Duration
	Mode          string // http | mcp | both
}

const (
	defaultAddr          = "0.0.0.0:7070"
	defaultLogLevel      = "info"
	defaultTickInterval  = time.Second
	defaultShutdownGrace = 5 * time.Second
	defaultMode          = "http"
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	// Load .env if present: current directory first, then the config dir.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "timerd", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("TIMERD_ADDR", defaultAddr),
			AuthToken: getEnvString("TIMERD_AUTH_TOKEN", ""),
		},
		Webhook: WebhookConfig{
			URL:        getEnvString("TIMERD_WEBHOOK_URL", ""),
			RatePerSec: getEnvFloat("TIMERD_WEBHOOK_RATE", 0),
		},
		StateDir:      getEnvString("TIMERD_STATE_DIR", ""),
		LogLevel:      getEnvString("TIMERD_LOG_LEVEL", defaultLogLevel),
		UseUTC:        getEnvBool("TIMERD_USE_UTC", false),
		TickInterval:  getEnvDuration("TIMERD_TICK_INTERVAL", defaultTickInterval),
		ShutdownGrace: getEnvDuration("TIMERD_SHUTDOWN_GRACE", defaultShutdownGrace),
		Mode:          getEnvString("TIMERD_MODE", defaultMode),
	}

	var addr, logLevel, stateDir, mode, webhookURL string
	var useUTC bool
	var tickInterval, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&useUTC, "use-utc", false, "Resolve calendar anchors in UTC instead of system local time")
	flag.DurationVar(&tickInterval, "tick-interval", 0, "Dispatch polling interval")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp or both")
	flag.StringVar(&webhookURL, "webhook-url", "", "Endpoint to notify when timers fire")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}
	if tickInterval > 0 {
		cfg.TickInterval = tickInterval
	}
	if shutdownGrace > 0 {
		cfg.ShutdownGrace = shutdownGrace
	}
	// Bool flags need flag.Visit to distinguish "unset" from "false".
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "use-utc" {
			cfg.UseUTC = useUTC
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Mode)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "timerd")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
