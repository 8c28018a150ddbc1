package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"COMMS_URL", "COMMS_EMBEDDED", "COMMS_EMBEDDED_HOST", "COMMS_EMBEDDED_PORT", "SERVICE_NAME",
	"RPC_SUBJECT", "CHANGE_EVENT_SUBJECT", "WIRE_CODEC",
	"ORIGIN_URL", "NETWORK_TIMEOUT", "VFS_ROOT", "DEFAULTS_FILE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE", "LOG_MAX_BACKUPS", "LOG_MAX_AGE",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range configEnvVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "" || cfg.COMMSEmbedded || cfg.COMMSEnabled() {
		t.Errorf("config:config_test - COMMS should be disabled by default")
	}
	if cfg.COMMSEmbeddedPort != 4222 {
		t.Errorf("config:config_test - COMMSEmbeddedPort = %d, want 4222", cfg.COMMSEmbeddedPort)
	}
	if cfg.COMMSName != "void-worker" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "void-worker")
	}
	if cfg.WireCodec != "json" {
		t.Errorf("config:config_test - WireCodec = %q, want json", cfg.WireCodec)
	}
	if cfg.NetworkTimeout != 30*time.Second {
		t.Errorf("config:config_test - NetworkTimeout = %v, want 30s", cfg.NetworkTimeout)
	}
	if cfg.VFSRoot != "mem://" {
		t.Errorf("config:config_test - VFSRoot = %q, want mem://", cfg.VFSRoot)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.ListenAddr() != ":8080" {
		t.Errorf("config:config_test - ListenAddr = %q, want :8080", cfg.ListenAddr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" || cfg.LogFile != "" || cfg.LogMaxSize != 100 {
		t.Errorf("config:config_test - unexpected logging defaults %q %q %d", cfg.LogLevel, cfg.LogFile, cfg.LogMaxSize)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - ValidateForDB should require DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":            "nats://custom:4222",
		"SERVICE_NAME":         "test-worker",
		"RPC_SUBJECT":          "custom.rpc",
		"CHANGE_EVENT_SUBJECT": "custom.changed",
		"WIRE_CODEC":           "cbor",
		"ORIGIN_URL":           "https://example.com",
		"NETWORK_TIMEOUT":      "3s",
		"VFS_ROOT":             "/tmp/site",
		"DATABASE_URL":         "postgres://test@localhost/test",
		"RUN_MIGRATIONS":       "true",
		"HTTP_ADDR":            "127.0.0.1:9090",
		"LOG_LEVEL":            "debug",
		"LOG_FILE":             "/tmp/void.log",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || !cfg.COMMSEnabled() {
		t.Errorf("config:config_test - COMMSURL = %q, want nats://custom:4222", cfg.COMMSURL)
	}
	if cfg.COMMSName != "test-worker" {
		t.Errorf("config:config_test - COMMSName = %q, want test-worker", cfg.COMMSName)
	}
	if cfg.RPCSubject != "custom.rpc" || cfg.ChangeEventSubject != "custom.changed" {
		t.Errorf("config:config_test - unexpected subjects %q %q", cfg.RPCSubject, cfg.ChangeEventSubject)
	}
	if cfg.WireCodec != "cbor" {
		t.Errorf("config:config_test - WireCodec = %q, want cbor", cfg.WireCodec)
	}
	if cfg.OriginURL != "https://example.com" || cfg.NetworkTimeout != 3*time.Second {
		t.Errorf("config:config_test - unexpected resolution settings %q %v", cfg.OriginURL, cfg.NetworkTimeout)
	}
	if cfg.VFSRoot != "/tmp/site" {
		t.Errorf("config:config_test - VFSRoot = %q, want /tmp/site", cfg.VFSRoot)
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" || !cfg.RunMigrations {
		t.Errorf("config:config_test - unexpected database settings")
	}
	if cfg.ListenAddr() != "127.0.0.1:9090" {
		t.Errorf("config:config_test - ListenAddr = %q, want 127.0.0.1:9090", cfg.ListenAddr())
	}
	if cfg.LogLevel != "debug" || cfg.LogFile != "/tmp/void.log" {
		t.Errorf("config:config_test - unexpected logging settings")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - unexpected validation error: %v", err)
	}
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	content := "SERVICE_NAME=from-file\nHTTP_PORT=9999\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("config:config_test - write env file: %v", err)
	}
	t.Setenv("HTTP_PORT", "7000")

	cfg, err := LoadConfig(path)
	// godotenv sets variables process-wide; undo them.
	defer os.Unsetenv("SERVICE_NAME")
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	if cfg.COMMSName != "from-file" {
		t.Errorf("config:config_test - COMMSName = %q, want from-file", cfg.COMMSName)
	}
	if cfg.HTTPPort != 7000 {
		t.Errorf("config:config_test - existing env must win over file, got %d", cfg.HTTPPort)
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown codec", func(c *Config) { c.WireCodec = "xml" }},
		{"zero network timeout", func(c *Config) { c.NetworkTimeout = 0 }},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }},
		{"relative origin", func(c *Config) { c.OriginURL = "/just/a/path" }},
		{"bad embedded port", func(c *Config) { c.COMMSEmbedded = true; c.COMMSEmbeddedPort = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{WireCodec: "json", NetworkTimeout: time.Second, HealthCheckTimeout: time.Second}
			tt.mutate(c)
			if err := c.ValidateForServe(); err == nil {
				t.Errorf("config:config_test - expected validation error")
			}
		})
	}
}
