package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xww/neutron-monitor-agent/pkg/log"
)

// Default intervals, in seconds where the wire format is an integer
const (
	DefaultResyncIntervalSec      = 5
	DefaultPingTimeoutSec         = 5
	DefaultPingIntervalSec        = 20
	DefaultPingReportThresholdSec = 120
	DefaultPollIntervalSec        = 2
	DefaultDriver                 = "ping"
	DefaultTopic                  = "monitor-agent"
	DefaultMetricsAddr            = "127.0.0.1:9464"
)

// Config holds the full agent configuration. It is loaded once at startup
// and passed by value into constructors; nothing mutates it afterwards.
type Config struct {
	// ControlPlaneURL is the base URL of the control plane API
	ControlPlaneURL string `yaml:"control_plane_url"`

	// Host identifies this agent to the control plane; defaults to the hostname
	Host string `yaml:"host"`

	// Driver selects the monitor driver implementation
	Driver string `yaml:"driver"`

	// DataDir holds the driver's persistent state
	DataDir string `yaml:"data_dir"`

	// ResyncIntervalSec is how often the needs-resync flag is checked
	ResyncIntervalSec int `yaml:"resync_interval_sec"`

	// PingTimeoutSec bounds a single reachability probe
	PingTimeoutSec int `yaml:"ping_timeout_sec"`

	// PingIntervalSec is the delay between probes of one monitor
	PingIntervalSec int `yaml:"ping_interval_sec"`

	// PingReportThresholdSec is how long a port may be unreachable before
	// its status is pushed to the control plane
	PingReportThresholdSec int `yaml:"ping_report_threshold_sec"`

	// ReportIntervalSec is the heartbeat interval; 0 disables reporting
	ReportIntervalSec int `yaml:"report_interval_sec"`

	// PollIntervalSec is the delay between notification long-polls
	PollIntervalSec int `yaml:"poll_interval_sec"`

	// MetricsAddr is the listen address for metrics and health endpoints;
	// empty disables the listener
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel log.Level `yaml:"log_level"`
	LogJSON  bool      `yaml:"log_json"`
	Topic    string    `yaml:"topic"`
}

// Load reads and validates configuration from a YAML file
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns a Config populated with defaults only
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Host = hostname
		}
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ResyncIntervalSec <= 0 {
		c.ResyncIntervalSec = DefaultResyncIntervalSec
	}
	if c.PingTimeoutSec <= 0 {
		c.PingTimeoutSec = DefaultPingTimeoutSec
	}
	if c.PingIntervalSec <= 0 {
		c.PingIntervalSec = DefaultPingIntervalSec
	}
	if c.PingReportThresholdSec <= 0 {
		c.PingReportThresholdSec = DefaultPingReportThresholdSec
	}
	if c.PollIntervalSec <= 0 {
		c.PollIntervalSec = DefaultPollIntervalSec
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = log.InfoLevel
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.ControlPlaneURL == "" {
		return fmt.Errorf("control_plane_url is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required and could not be derived from the hostname")
	}
	if c.ReportIntervalSec < 0 {
		return fmt.Errorf("report_interval_sec must not be negative")
	}
	return nil
}

// ResyncInterval returns the resync check interval as a duration
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSec) * time.Second
}

// PingTimeout returns the probe timeout as a duration
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSec) * time.Second
}

// PingInterval returns the probe interval as a duration
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

// PingReportThreshold returns the unreachability report threshold as a duration
func (c *Config) PingReportThreshold() time.Duration {
	return time.Duration(c.PingReportThresholdSec) * time.Second
}

// ReportInterval returns the heartbeat interval; zero means reporting is disabled
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSec) * time.Second
}

// PollInterval returns the notification poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// ReportingEnabled reports whether the heartbeat loop should run
func (c *Config) ReportingEnabled() bool {
	return c.ReportIntervalSec > 0
}
