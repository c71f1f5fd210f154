// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvAddr     = "STORYBOX_ADDR"
	EnvAPIToken = "STORYBOX_API_TOKEN"
	EnvNATSURL  = "STORYBOX_NATS_URL"
	EnvCatalog  = "STORYBOX_CATALOG"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Playback PlaybackConfig `yaml:"playback"`
	Carousel CarouselConfig `yaml:"carousel"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080" validate:"required"`
	// APIToken protects intent RPCs when set.
	APIToken string `yaml:"api_token"`
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file" validate:"required_if=Output file"`
}

// CatalogConfig represents the story catalog source.
type CatalogConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	TickIntervalMs        int  `yaml:"tick_interval_ms" default:"50" validate:"gte=10,lte=1000"`
	DefaultPageDurationMs int  `yaml:"default_page_duration_ms" default:"5000" validate:"gte=500,lte=600000"`
	UnmarkOnPrevious      bool `yaml:"unmark_on_previous"`
}

// CarouselConfig represents carousel coordinator configuration.
type CarouselConfig struct {
	ResortDelayMs *int `yaml:"resort_delay_ms" default:"300" validate:"required,gte=0,lte=10000"`
}

// EventsConfig represents host event forwarding.
type EventsConfig struct {
	// NATSURL is empty to only log events.
	NATSURL       string `yaml:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject_prefix" default:"storybox.events" validate:"required"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv(EnvCatalog); v != "" {
		c.Catalog.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// TickInterval returns the progress tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMs) * time.Millisecond
}

// DefaultPageDuration returns the duration used for pages without one.
func (c *Config) DefaultPageDuration() time.Duration {
	return time.Duration(c.Playback.DefaultPageDurationMs) * time.Millisecond
}

// ResortDelay returns the carousel re-sort debounce delay.
func (c *Config) ResortDelay() time.Duration {
	if c.Carousel.ResortDelayMs == nil {
		return 0
	}
	return time.Duration(*c.Carousel.ResortDelayMs) * time.Millisecond
}
