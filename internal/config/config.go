// Package config builds the immutable process configuration from a YAML file,
// YAA_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, with dots in the key
// replaced by underscores (server.port -> YAA_SERVER_PORT).
const EnvPrefix = "YAA"

// Config is the full process configuration. It is built once at startup and
// passed by value to constructors.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Channels  ChannelsConfig  `mapstructure:"channels" yaml:"channels"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host"`
	Port            int             `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodySize     int64           `mapstructure:"max_body_size" yaml:"max_body_size"`
	CORSOrigins     []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig limits requests per client IP and per API key.
type RateLimitConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	PerIPPerMin  int  `mapstructure:"per_ip_per_minute" yaml:"per_ip_per_minute"`
	PerKeyPerMin int  `mapstructure:"per_key_per_minute" yaml:"per_key_per_minute"`
}

// DatabaseConfig selects the run store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// AuthConfig controls API key and session handling.
type AuthConfig struct {
	Disabled     bool          `mapstructure:"disabled" yaml:"disabled"`
	APIKeyHeader string        `mapstructure:"api_key_header" yaml:"api_key_header"`
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// PipelineConfig controls run execution.
type PipelineConfig struct {
	RunTimeout  time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	OutputDir   string        `mapstructure:"output_dir" yaml:"output_dir"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// ChannelsConfig locates the channel registry.
type ChannelsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// QueueConfig configures the optional NATS JetStream run queue. An empty URL
// runs everything inline.
type QueueConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Stream  string        `mapstructure:"stream" yaml:"stream"`
	Subject string        `mapstructure:"subject" yaml:"subject"`
	Durable string        `mapstructure:"durable" yaml:"durable"`
	AckWait time.Duration `mapstructure:"ack_wait" yaml:"ack_wait"`
}

// AuditConfig sizes the audit write queue. Zero writes synchronously.
type AuditConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig toggles /metrics and OTLP tracing.
type TelemetryConfig struct {
	Metrics      bool   `mapstructure:"metrics" yaml:"metrics"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
}

// Default returns a Config pre-filled with defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit: RateLimitConfig{
				Enabled:      true,
				PerIPPerMin:  120,
				PerKeyPerMin: 60,
			},
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
			SessionTTL:   24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			RunTimeout:  30 * time.Minute,
			OutputDir:   "output",
			Concurrency: 2,
		},
		Channels: ChannelsConfig{Dir: "channels"},
		Queue: QueueConfig{
			Stream:  "YAA_RUNS",
			Subject: "yaa.runs.submit",
			Durable: "yaa-worker",
			AckWait: 2 * time.Minute,
		},
		Audit: AuditConfig{Buffer: 256},
		Log:   LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			Metrics:     true,
			ServiceName: "yaa",
		},
	}
}

// SetDefaults registers every default on v so that environment variables
// override keys that are absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.per_ip_per_minute", d.Server.RateLimit.PerIPPerMin)
	v.SetDefault("server.rate_limit.per_key_per_minute", d.Server.RateLimit.PerKeyPerMin)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("auth.disabled", d.Auth.Disabled)
	v.SetDefault("auth.api_key_header", d.Auth.APIKeyHeader)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	v.SetDefault("pipeline.run_timeout", d.Pipeline.RunTimeout)
	v.SetDefault("pipeline.output_dir", d.Pipeline.OutputDir)
	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("channels.dir", d.Channels.Dir)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.stream", d.Queue.Stream)
	v.SetDefault("queue.subject", d.Queue.Subject)
	v.SetDefault("queue.durable", d.Queue.Durable)
	v.SetDefault("queue.ack_wait", d.Queue.AckWait)
	v.SetDefault("audit.buffer", d.Audit.Buffer)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("telemetry.metrics", d.Telemetry.Metrics)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
}

// NewViper returns a viper instance with defaults, the YAA_ environment
// binding and, when found, the config file loaded. An empty path searches
// for yaa.yaml in the working directory and $HOME/.yaa; a missing file is
// not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("yaa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.yaa")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v. Relative paths are
// resolved against DataDir when one is set.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.DataDir != "" {
		cfg.Pipeline.OutputDir = under(cfg.DataDir, cfg.Pipeline.OutputDir)
		cfg.Channels.Dir = under(cfg.DataDir, cfg.Channels.Dir)
	}
	return cfg, nil
}

func under(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case c.Server.MaxBodySize <= 0:
		return errors.New("server.max_body_size must be positive")
	case c.Pipeline.Concurrency < 1:
		return errors.New("pipeline.concurrency must be at least 1")
	case c.Pipeline.RunTimeout < 0:
		return errors.New("pipeline.run_timeout must not be negative")
	case c.Auth.APIKeyHeader == "":
		return errors.New("auth.api_key_header is required")
	case c.Audit.Buffer < 0:
		return errors.New("audit.buffer must not be negative")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, mysql", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	if c.Queue.URL != "" && (c.Queue.Subject == "" || c.Queue.Stream == "" || c.Queue.Durable == "") {
		return errors.New("queue.stream, queue.subject and queue.durable are required with queue.url")
	}
	return nil
}

const secretMask = "********"

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = secretMask
	}
	if c.Database.DSN != "" && c.Database.Driver != "sqlite" {
		c.Database.DSN = secretMask
	}
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultHeader = `# yaa configuration
# Every key can be overridden with a YAA_ environment variable,
# e.g. YAA_SERVER_PORT=9000 or YAA_AUTH_JWT_SECRET=...
# Set queue.url to a NATS server to hand runs to 'yaa worker' processes.

`

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Default().YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0644)
}
