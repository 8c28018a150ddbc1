// Package config provides worker configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/void-worker/pkg/protocol"
)

const logPrefix = "config:LoadConfig"

// Config holds void-worker configuration.
type Config struct {
	// COMMS: connect to a standalone NATS at COMMSURL, or run one in-process when
	// COMMSEmbedded is set. With neither, the worker is reachable over HTTP only.
	COMMSURL          string `envconfig:"COMMS_URL"`
	COMMSEmbedded     bool   `envconfig:"COMMS_EMBEDDED" default:"false"`
	COMMSEmbeddedHost string `envconfig:"COMMS_EMBEDDED_HOST" default:"127.0.0.1"`
	COMMSEmbeddedPort int    `envconfig:"COMMS_EMBEDDED_PORT" default:"4222"`
	COMMSName         string `envconfig:"SERVICE_NAME" default:"void-worker"`

	// Subject overrides (empty = commsutil defaults)
	RPCSubject         string `envconfig:"RPC_SUBJECT"`
	ChangeEventSubject string `envconfig:"CHANGE_EVENT_SUBJECT"`

	// WireCodec selects the envelope encoding on NATS and the RPC WebSocket: json or cbor.
	WireCodec string `envconfig:"WIRE_CODEC" default:"json"`

	// Resolution
	OriginURL      string        `envconfig:"ORIGIN_URL"`
	NetworkTimeout time.Duration `envconfig:"NETWORK_TIMEOUT" default:"30s"`
	VFSRoot        string        `envconfig:"VFS_ROOT" default:"mem://"`
	DefaultsFile   string        `envconfig:"DEFAULTS_FILE"`

	// Database (empty = configuration kept in memory)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSize    int    `envconfig:"LOG_MAX_SIZE" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAge     int    `envconfig:"LOG_MAX_AGE" default:"28"`
}

// LoadConfig loads configuration from environment variables. Values from
// envFiles (default ".env") fill in variables that are not already set; a
// missing file is not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("%s - failed to load %s: %w", logPrefix, f, err)
		}
		slog.Debug(fmt.Sprintf("%s - Loaded environment from %s", logPrefix, f))
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr returns HTTPAddr, or ":HTTPPort" when unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// COMMSEnabled reports whether the worker serves RPC over NATS.
func (c *Config) COMMSEnabled() bool {
	return c.COMMSEmbedded || c.COMMSURL != ""
}

// ValidateForServe checks required config when running the worker.
func (c *Config) ValidateForServe() error {
	if _, err := protocol.CodecByName(c.WireCodec); err != nil {
		return fmt.Errorf("%s - WIRE_CODEC: %w", logPrefix, err)
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("%s - NETWORK_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.OriginURL != "" {
		u, err := url.Parse(c.OriginURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s - ORIGIN_URL %q must be an absolute URL", logPrefix, c.OriginURL)
		}
	}
	if c.COMMSEmbedded && (c.COMMSEmbeddedPort < -1 || c.COMMSEmbeddedPort > 65535) {
		return fmt.Errorf("%s - COMMS_EMBEDDED_PORT %d out of range", logPrefix, c.COMMSEmbeddedPort)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, config clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
