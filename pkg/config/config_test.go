package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences, causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

api:
  port: 8080
  jwt:
    secret: "test-secret-key-for-testing-minimum-32-chars"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Lock.Backend != LockBackendMemory {
		t.Errorf("Expected default lock backend 'memory', got %q", cfg.Lock.Backend)
	}
	if cfg.State.LeaseTime != 90*time.Second {
		t.Errorf("Expected default lease_time 90s, got %v", cfg.State.LeaseTime)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing config file yields the defaults.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_StateAndLockSections(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
state:
  lease_time: 30s
  lease_grace: 5s
  grace_period: 45s
  max_sessions_per_client: 4
  max_slots: 128

lock:
  backend: badger
  blocking_timeout: 2m
  max_locks_per_object: 50
  badger:
    path: "`+yamlSafePath(dir)+`/locks"
    index_cache_size: 16Mi
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.State.LeaseTime != 30*time.Second {
		t.Errorf("Expected lease_time 30s, got %v", cfg.State.LeaseTime)
	}
	if cfg.State.LeaseGrace != 5*time.Second {
		t.Errorf("Expected lease_grace 5s, got %v", cfg.State.LeaseGrace)
	}
	if cfg.State.GracePeriod != 45*time.Second {
		t.Errorf("Expected grace_period 45s, got %v", cfg.State.GracePeriod)
	}
	if cfg.State.MaxSessionsPerClient != 4 {
		t.Errorf("Expected max_sessions_per_client 4, got %d", cfg.State.MaxSessionsPerClient)
	}
	if cfg.State.MaxSlots != 128 {
		t.Errorf("Expected max_slots 128, got %d", cfg.State.MaxSlots)
	}
	if cfg.State.MaxBackSlots != 8 {
		t.Errorf("Expected default max_back_slots 8, got %d", cfg.State.MaxBackSlots)
	}
	if cfg.Lock.Backend != LockBackendBadger {
		t.Errorf("Expected backend 'badger', got %q", cfg.Lock.Backend)
	}
	if cfg.Lock.BlockingTimeout != 2*time.Minute {
		t.Errorf("Expected blocking_timeout 2m, got %v", cfg.Lock.BlockingTimeout)
	}
	if cfg.Lock.MaxLocksPerObject != 50 {
		t.Errorf("Expected max_locks_per_object 50, got %d", cfg.Lock.MaxLocksPerObject)
	}
	if cfg.Lock.Badger.IndexCacheSize.Uint64() != 16*1024*1024 {
		t.Errorf("Expected index_cache_size 16Mi, got %v", cfg.Lock.Badger.IndexCacheSize)
	}
}

func TestLoad_PostgresBackendRequiresHost(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
lock:
  backend: postgres
  postgres:
    database: locks
    user: nfs4state
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for postgres backend without host")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[api]
port = 8080

[api.jwt]
secret = "test-secret-key-for-testing-minimum-32-chars"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Lock.PollInterval != 500*time.Millisecond {
		t.Errorf("Expected default poll interval 500ms, got %v", cfg.Lock.PollInterval)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if filepath.Base(GetConfigDir()) != "nfs4state" {
		t.Errorf("Expected directory name 'nfs4state', got %q", filepath.Base(GetConfigDir()))
	}
}

func TestDefaultConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if DefaultConfigExists() {
		t.Fatal("Expected no config in an empty config dir")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !DefaultConfigExists() {
		t.Fatal("Expected config to exist after InitConfig")
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("NFS4STATE_LOGGING_LEVEL", "ERROR")
	t.Setenv("NFS4STATE_API_PORT", "9191")
	t.Setenv("NFS4STATE_STATE_LEASE_TIME", "45s")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

api:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("Expected port 9191 from env var, got %d", cfg.API.Port)
	}
	// Not present in the file: picked up through the bound env key.
	if cfg.State.LeaseTime != 45*time.Second {
		t.Errorf("Expected lease_time 45s from env var, got %v", cfg.State.LeaseTime)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Lock.MaxLocksPerObject = 7
	cfg.State.LeaseTime = 20 * time.Second

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 && os.PathSeparator == '/' {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Lock.MaxLocksPerObject != 7 {
		t.Errorf("Expected max_locks_per_object 7, got %d", loaded.Lock.MaxLocksPerObject)
	}
	if loaded.State.LeaseTime != 20*time.Second {
		t.Errorf("Expected lease_time 20s, got %v", loaded.State.LeaseTime)
	}
}
