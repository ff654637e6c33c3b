package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Edge Core, loaded from YAML with
// environment overrides on top.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Fleet    FleetConfig    `yaml:"fleet"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      BrokerAuth      `yaml:"auth"`
	QoS       int             `yaml:"qos"`
	Reconnect ReconnectPolicy `yaml:"reconnect"`
}

// BrokerConfig names the broker endpoint.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// BrokerAuth carries optional broker credentials. Empty username means
// anonymous access.
type BrokerAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectPolicy bounds the backoff between reconnect attempts, in seconds.
type ReconnectPolicy struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// FleetConfig carries the liveness and command timing knobs, all in seconds.
//
// Earlier deployments disagreed on exact values between services, so every
// interval is configurable here; the defaults are the consolidated set.
type FleetConfig struct {
	// WatchdogTimeout is how long to wait for a heartbeat before an edge
	// is declared offline.
	WatchdogTimeout int `yaml:"watchdog_timeout"`

	// HeartbeatTTL is how long a stored heartbeat counts as "online".
	HeartbeatTTL int `yaml:"heartbeat_ttl"`

	// PingInterval is the keep-alive ping period per edge.
	PingInterval int `yaml:"ping_interval"`

	// CommandTimeout is how long a command waits for its reply.
	CommandTimeout int `yaml:"command_timeout"`

	// CommandCacheTTL is the lifetime of cached command requests and
	// responses.
	CommandCacheTTL int `yaml:"command_cache_ttl"`
}

// APIConfig holds the HTTP server settings.
type APIConfig struct {
	Host     string      `yaml:"host"`
	Port     int         `yaml:"port"`
	TLS      TLSConfig   `yaml:"tls"`
	Timeouts APITimeouts `yaml:"timeouts"`
	CORS     CORSConfig  `yaml:"cors"`
}

// TLSConfig points at the serving certificate.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeouts holds the HTTP server timeouts, in seconds.
type APITimeouts struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists what cross-origin callers may do. Empty lists fall back
// to permissive dev-mode defaults.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig holds the liveness telemetry sink settings. Disabled by
// default; the rest of the system runs without it.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects log level, format, and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig groups the security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds the access token verification secret. Token issuance
// lives in the auth service; Edge Core only verifies.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then EDGECORE_* environment variables. The result
// is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig is the baseline every deployment starts from.
func defaultConfig() *Config {
	cfg := &Config{}

	cfg.Service.ID = "edge-core-001"
	cfg.Service.Name = "Edge Core"

	cfg.Database.Path = "./data/edgecore.db"
	cfg.Database.WALMode = true
	cfg.Database.BusyTimeout = 5

	cfg.MQTT.Broker.Host = "localhost"
	cfg.MQTT.Broker.Port = 1883
	cfg.MQTT.Broker.ClientID = "edge-core"
	cfg.MQTT.QoS = 1
	cfg.MQTT.Reconnect.InitialDelay = 1
	cfg.MQTT.Reconnect.MaxDelay = 60

	cfg.Fleet.WatchdogTimeout = 10
	cfg.Fleet.HeartbeatTTL = 15
	cfg.Fleet.PingInterval = 30
	cfg.Fleet.CommandTimeout = 30
	cfg.Fleet.CommandCacheTTL = 60

	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 8080
	cfg.API.Timeouts.Read = 30
	cfg.API.Timeouts.Write = 60
	cfg.API.Timeouts.Idle = 60

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"

	return cfg
}

// applyEnvOverrides lets deployment environments override file values
// without editing YAML. Secrets in particular should arrive this way.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"EDGECORE_DATABASE_PATH", &cfg.Database.Path},
		{"EDGECORE_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"EDGECORE_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"EDGECORE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"EDGECORE_API_HOST", &cfg.API.Host},
		{"EDGECORE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"EDGECORE_JWT_SECRET", &cfg.Security.JWT.Secret},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// minJWTSecretLength is the shortest secret accepted for HMAC signing.
const minJWTSecretLength = 32

// Validate reports every problem in the configuration at once, rather than
// failing on the first.
func (c *Config) Validate() error {
	var problems []string
	complain := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Service.ID == "" {
		complain("service.id is required")
	}
	if c.Database.Path == "" {
		complain("database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		complain("mqtt.qos must be 0, 1, or 2")
	}

	// Fleet timing. The watchdog must stay shorter than the heartbeat TTL,
	// or a live edge would read as offline between heartbeats.
	if c.Fleet.WatchdogTimeout <= 0 {
		complain("fleet.watchdog_timeout must be positive")
	}
	if c.Fleet.HeartbeatTTL < c.Fleet.WatchdogTimeout {
		complain("fleet.heartbeat_ttl must be >= fleet.watchdog_timeout")
	}
	if c.Fleet.PingInterval <= 0 {
		complain("fleet.ping_interval must be positive")
	}
	if c.Fleet.CommandTimeout <= 0 {
		complain("fleet.command_timeout must be positive")
	}
	if c.Fleet.CommandCacheTTL < c.Fleet.CommandTimeout {
		complain("fleet.command_cache_ttl must be >= fleet.command_timeout")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		complain("api.port must be between 1 and 65535")
	}

	// Edge Core relays commands to physical safety devices; a forged token
	// must never reach one, so a weak or missing secret is fatal.
	switch {
	case c.Security.JWT.Secret == "":
		complain("security.jwt.secret is required (set EDGECORE_JWT_SECRET environment variable)")
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		complain("security.jwt.secret must be at least %d characters", minJWTSecretLength)
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// seconds converts a numeric config value to a Duration.
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetWatchdogTimeout returns the heartbeat watchdog timeout as a Duration.
func (c *Config) GetWatchdogTimeout() time.Duration { return seconds(c.Fleet.WatchdogTimeout) }

// GetHeartbeatTTL returns the heartbeat cache TTL as a Duration.
func (c *Config) GetHeartbeatTTL() time.Duration { return seconds(c.Fleet.HeartbeatTTL) }

// GetPingInterval returns the keep-alive ping interval as a Duration.
func (c *Config) GetPingInterval() time.Duration { return seconds(c.Fleet.PingInterval) }

// GetCommandTimeout returns the command reply deadline as a Duration.
func (c *Config) GetCommandTimeout() time.Duration { return seconds(c.Fleet.CommandTimeout) }

// GetCommandCacheTTL returns the command cache TTL as a Duration.
func (c *Config) GetCommandCacheTTL() time.Duration { return seconds(c.Fleet.CommandCacheTTL) }
