// Package config loads the UPF's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the UPF configuration.
type Config struct {
	NF            NFConfig            `yaml:"nf"`
	PFCP          PFCPConfig          `yaml:"pfcp"`
	N3            N3Config            `yaml:"n3"`
	N6            N6Config            `yaml:"n6"`
	N9            N9Config            `yaml:"n9"`
	Forwarding    ForwardingConfig    `yaml:"forwarding"`
	QoS           QoSConfig           `yaml:"qos"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// NFConfig identifies this UPF instance.
type NFConfig struct {
	Name        string `yaml:"name"`
	InstanceID  string `yaml:"instance_id"`
	Description string `yaml:"description"`
}

// PFCPConfig holds N4 (control plane) interface configuration.
type PFCPConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	NodeID      string `yaml:"node_id"`
}

// N3Config holds N3 (gNB-facing GTP-U) interface configuration.
type N3Config struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// N6Config holds N6 (data network) TUN device configuration.
type N6Config struct {
	InterfaceName string `yaml:"interface_name"`
	Subnet        string `yaml:"subnet"`
	PublicIP      string `yaml:"public_ip"`   // SNAT public address
	NATPortLo     uint16 `yaml:"nat_port_lo"` // start of the SNAT public port allocation range
	NATPortHi     uint16 `yaml:"nat_port_hi"` // end of the SNAT public port allocation range, inclusive
}

// N9Config holds N9 (UPF-to-UPF) interface configuration.
type N9Config struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// QoSConfig holds default QoS parameters. DefaultQFI is loaded and
// defaulted to 5, but the PFCP handler does not read it: a QER that omits
// QFI gets session.DefaultQFI.
type QoSConfig struct {
	DefaultQFI uint8 `yaml:"default_qfi"`
}

// ForwardingConfig holds data-plane sizing knobs.
type ForwardingConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	QueueDepth  int           `yaml:"queue_depth"`
	Workers     int           `yaml:"workers"`
	DrainGrace  time.Duration `yaml:"drain_grace"`
}

// ObservabilityConfig groups logging/metrics/tracing knobs.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TracingConfig holds OpenTelemetry span export settings. They are loaded
// but not applied: no exporter is installed from them.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds zap logger settings. They are loaded and defaulted
// but not applied: the upf command always logs JSON at info level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file at configPath, applying
// defaults for anything left zero.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.PFCP.Port == 0 {
		cfg.PFCP.Port = 8805
	}
	if cfg.N3.Port == 0 {
		cfg.N3.Port = 2152
	}
	if cfg.N9.Port == 0 {
		cfg.N9.Port = 2152
	}
	if cfg.N6.InterfaceName == "" {
		cfg.N6.InterfaceName = "upf0"
	}
	if cfg.N6.Subnet == "" {
		cfg.N6.Subnet = "10.45.0.0/16"
	}
	if cfg.N6.NATPortLo == 0 && cfg.N6.NATPortHi == 0 {
		cfg.N6.NATPortLo = 10000
		cfg.N6.NATPortHi = 60000
	}
	if cfg.Forwarding.MaxSessions == 0 {
		cfg.Forwarding.MaxSessions = 1024
	}
	if cfg.Forwarding.QueueDepth == 0 {
		cfg.Forwarding.QueueDepth = 1024
	}
	if cfg.Forwarding.Workers == 0 {
		cfg.Forwarding.Workers = 4
	}
	if cfg.Forwarding.DrainGrace == 0 {
		cfg.Forwarding.DrainGrace = 2 * time.Second
	}
	if cfg.QoS.DefaultQFI == 0 {
		cfg.QoS.DefaultQFI = 5
	}
	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Metrics.Port == 0 {
		cfg.Observability.Metrics.Port = 9090
	}
}

// PFCPAddress returns the PFCP bind address as host:port.
func (c *Config) PFCPAddress() string {
	return fmt.Sprintf("%s:%d", c.PFCP.BindAddress, c.PFCP.Port)
}

// N3Address returns the N3 GTP-U bind address as host:port.
func (c *Config) N3Address() string {
	return fmt.Sprintf("%s:%d", c.N3.BindAddress, c.N3.Port)
}

// N9Address returns the N9 GTP-U bind address as host:port.
func (c *Config) N9Address() string {
	return fmt.Sprintf("%s:%d", c.N9.BindAddress, c.N9.Port)
}

// MetricsAddress returns the Prometheus exposition bind address.
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf(":%d", c.Observability.Metrics.Port)
}
