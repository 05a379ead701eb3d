package service

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/vibstreams/errors"
)

// Config is the full service configuration, loaded from YAML.
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Writer   WriterConfig   `yaml:"writer"`
}

// NATSConfig configures the bus connection.
type NATSConfig struct {
	URL   string `yaml:"url"`
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// DatabaseConfig configures the shared sqlite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port"` // 0 disables the endpoint
	Path string `yaml:"path"`
}

// GatewayConfig configures the WebSocket gateway.
type GatewayConfig struct {
	Addr string `yaml:"addr"` // empty disables the gateway
	Path string `yaml:"path"`
}

// IngressConfig tunes the bus adapter.
type IngressConfig struct {
	QueueSize    int      `yaml:"queue_size"`
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// Duration parses Go duration strings ("5s", "1m30s") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.WrapInvalid(err, "Service", "UnmarshalYAML", "parsing duration "+raw)
	}
	*d = Duration(parsed)
	return nil
}

// WriterConfig tunes the recording writer queue.
type WriterConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns a runnable local configuration.
func DefaultConfig() Config {
	return Config{
		NATS:     NATSConfig{URL: "nats://127.0.0.1:4222", Name: "vibstreams"},
		Database: DatabaseConfig{Path: "vibstreams.db"},
		Metrics:  MetricsConfig{Port: 9102, Path: "/metrics"},
		Gateway:  GatewayConfig{Addr: ":8081", Path: "/ws"},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "Service", "LoadConfig", "reading config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "Service", "LoadConfig", "parsing config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("nats.url is required"),
			"Service", "Validate", "checking bus configuration")
	}
	if c.Database.Path == "" {
		return errors.WrapInvalid(fmt.Errorf("database.path is required"),
			"Service", "Validate", "checking database configuration")
	}
	if c.Ingress.QueueSize < 0 || c.Writer.QueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("queue sizes must be non-negative"),
			"Service", "Validate", "checking queue configuration")
	}
	return nil
}
