package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAnalysisAPIURL, "")
	t.Setenv(EnvStoreDriver, "")
	t.Setenv(EnvStorePath, "")
	t.Setenv("CONTRACTDASH_PORT", "")
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `
server:
  port: 9090
  allowed_origins: ["http://app.test"]
analysis:
  api_url: "http://analysis.test:8501"
  timeout_seconds: 60
storage:
  driver: "dir"
  path: "/tmp/contractdash"
  history_limit: 5
minio:
  endpoint: "localhost:9000"
  access_key: "minioadmin"
  secret_key: "minioadmin"
  bucket: "contracts"
  expire_days: 14
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
log:
  level: "debug"
  format: "json"
users:
  - username: "testuser"
    password: "testpass"
    tenant: "testtenant"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.APIURL != "http://analysis.test:8501" {
		t.Errorf("Expected api_url http://analysis.test:8501, got %s", cfg.Analysis.APIURL)
	}
	if cfg.Analysis.TimeoutSeconds != 60 {
		t.Errorf("Expected timeout_seconds 60, got %d", cfg.Analysis.TimeoutSeconds)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://app.test" {
		t.Errorf("Unexpected allowed_origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.Driver != "dir" || cfg.Storage.Path != "/tmp/contractdash" {
		t.Errorf("Unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Storage.HistoryLimit != 5 {
		t.Errorf("Expected history_limit 5, got %d", cfg.Storage.HistoryLimit)
	}
	if !cfg.Minio.Enabled() {
		t.Error("Expected minio to be enabled")
	}
	if cfg.Minio.ExpireDays != 14 {
		t.Errorf("Expected expire_days 14, got %d", cfg.Minio.ExpireDays)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token_expire_hours 48, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if len(cfg.Users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(cfg.Users))
	}
	if cfg.Users[0].Username != "testuser" {
		t.Errorf("Expected username testuser, got %s", cfg.Users[0].Username)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `
auth:
  jwt_secret: "test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.APIURL != DefaultAnalysisAPIURL {
		t.Errorf("Expected default api_url %s, got %s", DefaultAnalysisAPIURL, cfg.Analysis.APIURL)
	}
	if cfg.Analysis.TimeoutSeconds != 300 {
		t.Errorf("Expected default timeout 300, got %d", cfg.Analysis.TimeoutSeconds)
	}
	if cfg.Analysis.MaxUploadMB != 20 {
		t.Errorf("Expected default max upload 20, got %d", cfg.Analysis.MaxUploadMB)
	}
	if cfg.Analysis.RateLimit != 10 {
		t.Errorf("Expected default rate limit 10, got %d", cfg.Analysis.RateLimit)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "data/contractdash.db" {
		t.Errorf("Expected default path data/contractdash.db, got %s", cfg.Storage.Path)
	}
	if cfg.Storage.HistoryLimit != 20 {
		t.Errorf("Expected default history_limit 20, got %d", cfg.Storage.HistoryLimit)
	}
	if cfg.Minio.Enabled() {
		t.Error("Expected minio to be disabled without endpoint")
	}
	if cfg.Minio.Region != "us-east-1" {
		t.Errorf("Expected default region us-east-1, got %s", cfg.Minio.Region)
	}
	if cfg.Minio.ExpireDays != 7 {
		t.Errorf("Expected default expire_days 7, got %d", cfg.Minio.ExpireDays)
	}
	if cfg.Auth.TokenExpireHours != 24 {
		t.Errorf("Expected default token_expire_hours 24, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAnalysisAPIURL, "http://env.test:9000")
	t.Setenv(EnvStoreDriver, "dir")
	t.Setenv(EnvStorePath, "/var/lib/contractdash")
	t.Setenv("CONTRACTDASH_PORT", "7070")

	path := writeTempConfig(t, `
analysis:
  api_url: "http://file.test:8501"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Analysis.APIURL != "http://env.test:9000" {
		t.Errorf("Expected env api_url to win, got %s", cfg.Analysis.APIURL)
	}
	if cfg.Storage.Driver != "dir" {
		t.Errorf("Expected driver dir, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "/var/lib/contractdash" {
		t.Errorf("Expected env path, got %s", cfg.Storage.Path)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
}

func TestDefaultDirPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoreDriver, "dir")

	cfg := Default()
	if cfg.Storage.Path != "data/storage" {
		t.Errorf("Expected dir default path data/storage, got %s", cfg.Storage.Path)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "invalid: yaml: content:")

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{
		Users: []User{
			{Username: "user1", Password: "pass1", Tenant: "tenant1"},
			{Username: "user2", Password: "pass2", Tenant: "tenant2"},
		},
	}

	user := cfg.FindUser("user1")
	if user == nil {
		t.Fatal("Expected to find user1")
	}
	if user.Password != "pass1" {
		t.Errorf("Expected password pass1, got %s", user.Password)
	}

	user = cfg.FindUser("nonexistent")
	if user != nil {
		t.Error("Expected nil for non-existent user")
	}
}
