// Package config loads the scene server configuration from YAML, applies
// defaults and SCENE_* environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete scene server configuration.
type Config struct {
	API        APIConfig                   `yaml:"api"`
	Radars     []string                    `yaml:"radars" validate:"dive,required"`
	AdsbURL    string                      `yaml:"adsb_url"`
	Poll       PollConfig                  `yaml:"poll"`
	Tracks     TracksConfig                `yaml:"tracks"`
	Ellipsoids DecayConfig                 `yaml:"ellipsoids"`
	Adsb       AgeConfig                   `yaml:"adsb"`
	Server     ServerConfig                `yaml:"server"`
	Kafka      KafkaConfig                 `yaml:"kafka"`
	Log        LogConfig                   `yaml:"log"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
}

// APIConfig locates the solver endpoint serving tracks and ellipsoids.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required"`
	Query   string        `yaml:"query"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// PollConfig holds the fixed delay waited after every cycle, per category.
type PollConfig struct {
	Delay      time.Duration `yaml:"delay" validate:"gt=0"`
	RadarDelay time.Duration `yaml:"radar_delay" validate:"gt=0"`
	AdsbDelay  time.Duration `yaml:"adsb_delay" validate:"gt=0"`
}

type TracksConfig struct {
	HistoryLength int `yaml:"history_length" validate:"gt=0"`
}

// DecayConfig configures the age sweep of a category that fades before
// removal.
type DecayConfig struct {
	MaxAge    time.Duration `yaml:"max_age" validate:"gt=0"`
	BaseAlpha float64       `yaml:"base_alpha" validate:"gte=0,lte=1"`
}

// AgeConfig configures a sweep that removes without fading.
type AgeConfig struct {
	MaxAge time.Duration `yaml:"max_age" validate:"gt=0"`
}

type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" validate:"required"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// KafkaConfig enables track lifecycle event publishing.
type KafkaConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Brokers   []string      `yaml:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic     string        `yaml:"topic" validate:"required_if=Enabled true"`
	QueueSize int           `yaml:"queue_size" validate:"gte=0"`
	Flush     time.Duration `yaml:"flush" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "localhost:8080",
			Timeout: 5 * time.Second,
		},
		Poll: PollConfig{
			Delay:      time.Second,
			RadarDelay: 30 * time.Second,
			AdsbDelay:  time.Second,
		},
		Tracks:     TracksConfig{HistoryLength: 50},
		Ellipsoids: DecayConfig{MaxAge: 10 * time.Second, BaseAlpha: 0.5},
		Adsb:       AgeConfig{MaxAge: 10 * time.Second},
		Server: ServerConfig{
			HTTPAddr:    ":8090",
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Kafka:   KafkaConfig{Topic: "scene.tracks", QueueSize: 1024, Flush: time.Second},
		Log:     LogConfig{Level: "info", Format: "json"},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
		}
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays SCENE_* environment variables on cfg.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("SCENE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("SCENE_API_QUERY"); v != "" {
		cfg.API.Query = v
	}
	if v := os.Getenv("SCENE_RADARS"); v != "" {
		cfg.Radars = splitList(v)
	}
	if v := os.Getenv("SCENE_ADSB_URL"); v != "" {
		cfg.AdsbURL = v
	}
	envDuration("SCENE_POLL_DELAY", &cfg.Poll.Delay)
	envDuration("SCENE_RADAR_DELAY", &cfg.Poll.RadarDelay)
	envDuration("SCENE_ADSB_DELAY", &cfg.Poll.AdsbDelay)
	if v := os.Getenv("SCENE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("SCENE_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("SCENE_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("SCENE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SCENE_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	cfg.Tracing = observability.TracingConfigFromEnv(cfg.Tracing)
	return cfg
}

// Validate checks struct constraints and returns an error wrapping ErrInvalid.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Logging converts the log section into a logger config.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}

var validate = validator.New()

func envDuration(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
