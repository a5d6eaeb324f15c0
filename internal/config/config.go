// Package config loads the edgemq daemon configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	Broker        BrokerConfig         `yaml:"broker"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Notifier      NotifierConfig       `yaml:"notifier"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Logging       LoggingConfig        `yaml:"logging"`
}

// BrokerConfig describes the broker connection.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Client identifier; empty derives one from the host name.
	ClientID string `yaml:"client_id"`

	// Keep alive in seconds; 0 selects the client default.
	KeepAlive int `yaml:"keep_alive"`

	// Connect timeout in seconds
	ConnectTimeout int `yaml:"connect_timeout"`

	WildcardDispatch bool            `yaml:"wildcard_dispatch"`
	WebSocket        WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig selects the WebSocket transport.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Secure  bool   `yaml:"secure"`
}

// SubscriptionConfig is one topic the daemon subscribes to and logs.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// NotifierConfig controls the periodic uptime notification.
type NotifierConfig struct {
	// Seconds between uptime notifications; 0 disables them.
	UptimeInterval int `yaml:"uptime_interval"`

	FailureThreshold int `yaml:"failure_threshold"`

	// Seconds the notifier stays suppressed after tripping
	ResetTimeout int `yaml:"reset_timeout"`

	// Notifications per second and burst; a zero rate is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen address such as ":9100"; empty disables the endpoint.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration at path. An empty path loads defaults only.
// Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:           "localhost",
			Port:           1883,
			KeepAlive:      60,
			ConnectTimeout: 30,
			WebSocket: WebSocketConfig{
				Path: "/mqtt",
			},
		},
		Notifier: NotifierConfig{
			UptimeInterval:   300,
			FailureThreshold: 3,
			ResetTimeout:     60,
			RateLimit:        1,
			Burst:            5,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EDGEMQ_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EDGEMQ_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("EDGEMQ_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EDGEMQ_BROKER_PORT: %w", err)
		}
		cfg.Broker.Port = port
	}
	if v := os.Getenv("EDGEMQ_BROKER_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("EDGEMQ_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("EDGEMQ_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := os.Getenv("EDGEMQ_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("EDGEMQ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.KeepAlive < 0 || c.Broker.KeepAlive > 65535 {
		errs = append(errs, "broker.keep_alive must be between 0 and 65535")
	}
	if c.Broker.ConnectTimeout < 0 {
		errs = append(errs, "broker.connect_timeout must not be negative")
	}

	for i, sub := range c.Subscriptions {
		if sub.Topic == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].topic is required", i))
		}
		if sub.QoS < 0 || sub.QoS > 2 {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].qos must be 0, 1, or 2", i))
		}
	}

	if c.Notifier.UptimeInterval < 0 {
		errs = append(errs, "notifier.uptime_interval must not be negative")
	}
	if c.Notifier.FailureThreshold < 0 || c.Notifier.ResetTimeout < 0 {
		errs = append(errs, "notifier.failure_threshold and notifier.reset_timeout must not be negative")
	}
	if c.Notifier.RateLimit < 0 || c.Notifier.Burst < 0 {
		errs = append(errs, "notifier.rate_limit and notifier.burst must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RegisterFlags defines the command line overrides on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "MQTT broker hostname")
	fs.Int("port", 0, "MQTT broker port")
	fs.String("username", "", "MQTT username")
	fs.String("password", "", "MQTT password")
	fs.String("client-id", "", "MQTT client ID (default: host name)")
	fs.Int("keep-alive", 0, "keep alive interval in seconds")
	fs.Bool("websocket", false, "connect through the broker's WebSocket listener")
	fs.StringSlice("subscribe", nil, "topic to subscribe to and log (repeatable)")
	fs.String("metrics-listen", "", "address for the Prometheus endpoint")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// ApplyFlags copies the flags set on the command line into c and
// validates the result. Flags take precedence over the file and the
// environment.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}

	str("host", &c.Broker.Host)
	num("port", &c.Broker.Port)
	str("username", &c.Broker.Username)
	str("password", &c.Broker.Password)
	str("client-id", &c.Broker.ClientID)
	num("keep-alive", &c.Broker.KeepAlive)
	str("metrics-listen", &c.Metrics.Listen)
	str("log-level", &c.Logging.Level)

	if err == nil && fs.Changed("websocket") {
		c.Broker.WebSocket.Enabled, err = fs.GetBool("websocket")
	}
	if err == nil && fs.Changed("subscribe") {
		var topics []string
		topics, err = fs.GetStringSlice("subscribe")
		for _, topic := range topics {
			c.Subscriptions = append(c.Subscriptions, SubscriptionConfig{Topic: topic})
		}
	}
	if err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}

	return c.Validate()
}
