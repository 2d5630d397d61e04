package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("NOTESAPP_AUTH_ACCESS_SECRET", "access-secret")
	t.Setenv("NOTESAPP_AUTH_REFRESH_SECRET", "refresh-secret")
	t.Setenv("NOTESAPP_MEDIA_BUCKET", "avatars")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected address/path defaults: %q %q", cfg.HTTPAddress, cfg.DatabasePath)
	}
	if cfg.Auth.Issuer != "notesapp" || cfg.Auth.BcryptCost != 10 || !cfg.Auth.CookieSecure {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute || cfg.Auth.RefreshTTL != 240*time.Hour {
		t.Fatalf("unexpected ttl defaults: access=%s refresh=%s", cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	}
	if cfg.Media.Region != "us-east-1" || cfg.Media.MaxAvatarBytes != 5<<20 {
		t.Fatalf("unexpected media defaults: %+v", cfg.Media)
	}
	if cfg.Retention.Window != 30*24*time.Hour || cfg.Retention.Interval != 24*time.Hour {
		t.Fatalf("unexpected retention defaults: %+v", cfg.Retention)
	}
	if cfg.RateLimit.AuthPerMinute != 10 || cfg.RateLimit.AuthBurst != 5 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins by default, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("NOTESAPP_HTTP_ADDRESS", "127.0.0.1:9000")
	t.Setenv("NOTESAPP_AUTH_ACCESS_TTL", "5m")
	t.Setenv("NOTESAPP_AUTH_COOKIE_SECURE", "false")
	t.Setenv("NOTESAPP_CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://notes.example.com")
	t.Setenv("NOTESAPP_RETENTION_WINDOW", "2m")
	t.Setenv("NOTESAPP_MEDIA_ENDPOINT", "http://minio:9000")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.Auth.AccessTTL != 5*time.Minute || cfg.Auth.CookieSecure {
		t.Fatalf("unexpected auth overrides: %+v", cfg.Auth)
	}
	wantOrigins := []string{"http://localhost:3000", "https://notes.example.com"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, wantOrigins) {
		t.Fatalf("unexpected origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Retention.Window != 2*time.Minute {
		t.Fatalf("unexpected retention window %s", cfg.Retention.Window)
	}
	if cfg.Media.Endpoint != "http://minio:9000" {
		t.Fatalf("unexpected media endpoint %q", cfg.Media.Endpoint)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing access secret", env: map[string]string{"NOTESAPP_AUTH_ACCESS_SECRET": ""}, want: "auth.access_secret"},
		{name: "missing refresh secret", env: map[string]string{"NOTESAPP_AUTH_REFRESH_SECRET": ""}, want: "auth.refresh_secret"},
		{name: "shared secret", env: map[string]string{"NOTESAPP_AUTH_REFRESH_SECRET": "access-secret"}, want: "must differ"},
		{name: "missing bucket", env: map[string]string{"NOTESAPP_MEDIA_BUCKET": ""}, want: "media.bucket"},
		{name: "inverted ttls", env: map[string]string{"NOTESAPP_AUTH_ACCESS_TTL": "300h"}, want: "shorter"},
		{name: "bad retention", env: map[string]string{"NOTESAPP_RETENTION_WINDOW": "0s"}, want: "retention"},
		{name: "bad rate limit", env: map[string]string{"NOTESAPP_RATELIMIT_AUTH_BURST": "0"}, want: "ratelimit"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range testCase.env {
				t.Setenv(key, value)
			}
			_, err := Load(NewViper())
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), testCase.want) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.want, err)
			}
		})
	}
}

func TestLoadStorageIgnoresServerSettings(t *testing.T) {
	t.Setenv("NOTESAPP_AUTH_ACCESS_SECRET", "")
	t.Setenv("NOTESAPP_AUTH_REFRESH_SECRET", "")
	t.Setenv("NOTESAPP_MEDIA_BUCKET", "")
	t.Setenv("NOTESAPP_RATELIMIT_AUTH_BURST", "0")
	t.Setenv("NOTESAPP_DATABASE_PATH", "sweep.db")
	t.Setenv("NOTESAPP_RETENTION_WINDOW", "48h")

	cfg, err := LoadStorage(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.DatabasePath != "sweep.db" || cfg.Retention.Window != 48*time.Hour {
		t.Fatalf("unexpected storage config: path=%q window=%s", cfg.DatabasePath, cfg.Retention.Window)
	}

	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected full load to reject missing secrets")
	}

	t.Setenv("NOTESAPP_DATABASE_PATH", " ")
	if _, err := LoadStorage(NewViper()); err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Fatalf("expected database.path error, got %v", err)
	}

	t.Setenv("NOTESAPP_DATABASE_PATH", "sweep.db")
	t.Setenv("NOTESAPP_RETENTION_WINDOW", "0s")
	if _, err := LoadStorage(NewViper()); err == nil || !strings.Contains(err.Error(), "retention") {
		t.Fatalf("expected retention error, got %v", err)
	}
}

func TestLoadDotEnvPopulatesEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("NOTESAPP_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("NOTESAPP_DOTENV_VALUE", "")
	if err := os.Unsetenv("NOTESAPP_DOTENV_VALUE"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("unexpected dotenv error: %v", err)
	}
	if got := os.Getenv("NOTESAPP_DOTENV_VALUE"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestSplitList(t *testing.T) {
	testCases := []struct {
		raw  interface{}
		want []string
	}{
		{raw: "a, b", want: []string{"a", "b"}},
		{raw: []string{" a ", "", "b"}, want: []string{"a", "b"}},
		{raw: []interface{}{"x"}, want: []string{"x"}},
		{raw: nil, want: []string{}},
	}
	for _, testCase := range testCases {
		if got := splitList(testCase.raw); !reflect.DeepEqual(got, testCase.want) {
			t.Fatalf("splitList(%v) = %v, want %v", testCase.raw, got, testCase.want)
		}
	}
}
