package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsLoad(t *testing.T) {
	v, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("explicit missing config file should fail")
	}

	t.Chdir(t.TempDir())
	v, err = NewViper("")
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 || cfg.Database.Driver != "sqlite" {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Pipeline.RunTimeout != 30*time.Minute {
		t.Errorf("run timeout = %v", cfg.Pipeline.RunTimeout)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("api key header = %q", cfg.Auth.APIKeyHeader)
	}
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yaa.yaml")
	const file = `
data_dir: /srv/yaa
server:
  port: 9000
pipeline:
  run_timeout: 5m
  output_dir: out
channels:
  dir: /abs/channels
log:
  format: json
`
	if err := os.WriteFile(path, []byte(file), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YAA_SERVER_PORT", "9100")
	t.Setenv("YAA_AUTH_JWT_SECRET", "s3cret")

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("jwt secret not read from env")
	}
	if cfg.Pipeline.RunTimeout != 5*time.Minute {
		t.Errorf("run timeout = %v", cfg.Pipeline.RunTimeout)
	}
	if cfg.Pipeline.OutputDir != filepath.Join("/srv/yaa", "out") {
		t.Errorf("output dir = %q", cfg.Pipeline.OutputDir)
	}
	if cfg.Channels.Dir != "/abs/channels" {
		t.Errorf("channels dir = %q", cfg.Channels.Dir)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }, "pipeline.concurrency"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"queue", func(c *Config) { c.Queue.URL = "nats://x"; c.Queue.Subject = "" }, "queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "top"
	cfg.Database = DatabaseConfig{Driver: "postgres", DSN: "postgres://u:p@h/db"}

	m := cfg.Masked()
	if m.Auth.JWTSecret != secretMask || m.Database.DSN != secretMask {
		t.Errorf("secrets not masked: %+v", m)
	}
	if cfg.Auth.JWTSecret != "top" {
		t.Error("Masked modified the receiver")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yaa.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("second write without force should fail")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced write: %v", err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load written default: %v", err)
	}
	if cfg.Pipeline.RunTimeout != 30*time.Minute || cfg.Queue.AckWait != 2*time.Minute {
		t.Errorf("durations did not round trip: %+v", cfg.Pipeline)
	}
}
