package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const (
	// MinJWTSecretLength is the minimum accepted HMAC secret length.
	MinJWTSecretLength = 32

	envPrefix = "IDLEWARDEN"
)

// Duration is a time.Duration that reads from TOML strings such as "40m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	str := strings.TrimSpace(string(text))
	if str == "" {
		return fmt.Errorf("invalid duration: empty value")
	}
	parsed, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", str, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", str)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// MonitorConfig is the idle-timeout policy applied to every console tab.
type MonitorConfig struct {
	TotalTimeout   Duration `toml:"total_timeout"`
	WarningLead    Duration `toml:"warning_lead"`
	ExcludedRoutes []string `toml:"excluded_routes"`
	ActivityEvents []string `toml:"activity_events"`
	LoginRoute     string   `toml:"login_route"`
}

type ServerConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// ActivityRate is the number of activity messages per second accepted
	// from one tab; ActivityBurst is the bucket size.
	ActivityRate    float64  `toml:"activity_rate"`
	ActivityBurst   int      `toml:"activity_burst"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type AuthConfig struct {
	Issuer    string `toml:"issuer"`
	Algorithm string `toml:"algorithm"`
	AdminRole string `toml:"admin_role"`
}

type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	URL         string   `toml:"url"`
	KeyPrefix   string   `toml:"key_prefix"`
	DialTimeout Duration `toml:"dial_timeout"`
}

type StateConfig struct {
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"`
}

type EngineConfig struct {
	Interval Duration `toml:"interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type DBusConfig struct {
	Enabled bool `toml:"enabled"`
	// System selects the system bus; false uses the session bus.
	System *bool `toml:"system"`
}

// Secrets never live in the TOML file; they are read from the environment.
type Secrets struct {
	JWTSecret     string `envconfig:"JWT_SECRET"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
}

type Config struct {
	Monitor MonitorConfig `toml:"monitor"`
	Server  ServerConfig  `toml:"server"`
	Auth    AuthConfig    `toml:"auth"`
	Redis   RedisConfig   `toml:"redis"`
	State   StateConfig   `toml:"state"`
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`
	DBus    DBusConfig    `toml:"dbus"`
	Secrets Secrets       `toml:"-"`
}

// SetDefault fills every unset field with its default value.
func (c *Config) SetDefault() {
	if c.Monitor.TotalTimeout == 0 {
		c.Monitor.TotalTimeout = Duration(40 * time.Minute)
	}
	if c.Monitor.WarningLead == 0 {
		c.Monitor.WarningLead = Duration(5 * time.Minute)
	}
	if c.Monitor.ExcludedRoutes == nil {
		c.Monitor.ExcludedRoutes = []string{"login", "register"}
	}
	if c.Monitor.ActivityEvents == nil {
		c.Monitor.ActivityEvents = []string{"mousedown", "mousemove", "keydown", "keypress", "scroll", "touchstart", "click"}
	}
	if c.Monitor.LoginRoute == "" {
		c.Monitor.LoginRoute = "login"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Server.ActivityRate == 0 {
		c.Server.ActivityRate = 20
	}
	if c.Server.ActivityBurst == 0 {
		c.Server.ActivityBurst = 40
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(15 * time.Second)
	}

	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = "HS256"
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "admin"
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "idlewarden"
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = Duration(5 * time.Second)
	}

	if c.State.Path == "" {
		c.State.Path = "/var/lib/idlewarden/state.json"
	}
	if c.State.Retention == 0 {
		c.State.Retention = Duration(30 * 24 * time.Hour)
	}

	if c.Engine.Interval == 0 {
		c.Engine.Interval = Duration(time.Minute)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.DBus.System == nil {
		defaultVal := true
		c.DBus.System = &defaultVal
	}
}

// Validate rejects configurations the daemon must not start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Monitor.TotalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.total_timeout must be positive"))
	}
	if c.Monitor.WarningLead <= 0 {
		errs = append(errs, fmt.Errorf("monitor.warning_lead must be positive"))
	}
	if c.Monitor.WarningLead >= c.Monitor.TotalTimeout {
		errs = append(errs, fmt.Errorf("monitor.warning_lead (%s) must be less than monitor.total_timeout (%s)",
			c.Monitor.WarningLead.Std(), c.Monitor.TotalTimeout.Std()))
	}
	if len(c.Monitor.ActivityEvents) == 0 {
		errs = append(errs, fmt.Errorf("monitor.activity_events must not be empty"))
	}
	if c.Server.ActivityRate <= 0 || c.Server.ActivityBurst <= 0 {
		errs = append(errs, fmt.Errorf("server.activity_rate and server.activity_burst must be positive"))
	}
	if len(c.Secrets.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("%s_JWT_SECRET must be at least %d characters", envPrefix, MinJWTSecretLength))
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("auth.algorithm %q is not supported", c.Auth.Algorithm))
	}

	return errors.Join(errs...)
}

// LoadSecrets reads secrets from the environment, loading envFile first if it exists.
func (c *Config) LoadSecrets(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(envPrefix, &c.Secrets); err != nil {
		return fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	return nil
}

func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// a missing file means "all defaults"
			data = nil
		} else {
			return nil, err
		}
	}
	return LoadConfigFromBytes(data)
}

func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.SetDefault()
	return &config, nil
}
