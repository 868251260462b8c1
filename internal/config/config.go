// Package config defines the keygate configuration file and its defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/model"
)

// Config represents the top-level keygate configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redemption RedemptionConfig `yaml:"redemption"`
	Admin      AdminConfig      `yaml:"admin"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	TrustProxy      bool       `yaml:"trust_proxy"` // honour X-Forwarded-For for the origin address
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// DatabaseConfig selects the key store.
type DatabaseConfig struct {
	Driver  string         `yaml:"driver"`
	DSN     string         `yaml:"dsn"`
	DataDir string         `yaml:"data_dir"`
	Table   string         `yaml:"table"`
	Pool    PoolYAMLConfig `yaml:"pool"`
}

// PoolYAMLConfig controls the connection pool in YAML config.
type PoolYAMLConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
}

// RedemptionConfig controls redemption policy.
type RedemptionConfig struct {
	HardwarePolicy string `yaml:"hardware_policy"` // permissive | strict
}

// AdminConfig controls the administrative surfaces.
type AdminConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	TokenTTL   string `yaml:"token_ttl"`
	NukeWindow string `yaml:"nuke_window"`
	Actor      string `yaml:"actor"` // recorded as the banning party for CLI and console actions
}

// NotifyConfig controls operator notifications.
type NotifyConfig struct {
	WebhookURL      string `yaml:"webhook_url"`
	WebhookTimeout  string `yaml:"webhook_timeout"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisChannel    string `yaml:"redis_channel"`
	DeliveryTimeout string `yaml:"delivery_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	pool := model.DefaultPoolConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Table:  keystore.DefaultTable,
			Pool: PoolYAMLConfig{
				MaxOpenConns:    pool.MaxOpenConns,
				MaxIdleConns:    pool.MaxIdleConns,
				ConnMaxLifetime: pool.ConnMaxLifetime.String(),
				ConnMaxIdleTime: pool.ConnMaxIdleTime.String(),
			},
		},
		Redemption: RedemptionConfig{HardwarePolicy: string(lifecycle.HardwarePermissive)},
		Admin: AdminConfig{
			TokenTTL:   "1h",
			NukeWindow: "30s",
			Actor:      "cli",
		},
		Notify: NotifyConfig{
			WebhookTimeout:  "3s",
			RedisChannel:    "keygate:events",
			DeliveryTimeout: "5s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFile reads and parses a YAML configuration file over the defaults.
// Environment variables referenced as ${VAR_NAME} are expanded before parsing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	header := "# keygate configuration\n# Values may reference environment variables as ${VAR_NAME}.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0644)
}

// Validate checks values that cannot be caught by YAML decoding.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !keystore.Supported(c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database.driver %q (want one of %s)", c.Database.Driver, strings.Join(keystore.Drivers(), ", ")))
	}
	if c.Database.Table != "" {
		if err := keystore.ValidateTableName(c.Database.Table); err != nil {
			errs = append(errs, fmt.Errorf("database.table: %w", err))
		}
	}
	if _, err := lifecycle.ParseHardwarePolicy(c.Redemption.HardwarePolicy); err != nil {
		errs = append(errs, fmt.Errorf("redemption.hardware_policy: %w", err))
	}
	for name, v := range map[string]string{
		"server.shutdown_timeout":          c.Server.ShutdownTimeout,
		"database.pool.conn_max_lifetime":  c.Database.Pool.ConnMaxLifetime,
		"database.pool.conn_max_idle_time": c.Database.Pool.ConnMaxIdleTime,
		"admin.token_ttl":                  c.Admin.TokenTTL,
		"admin.nuke_window":                c.Admin.NukeWindow,
		"notify.webhook_timeout":           c.Notify.WebhookTimeout,
		"notify.delivery_timeout":          c.Notify.DeliveryTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q (want debug, info, warn or error)", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q (want text or json)", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// PoolConfig converts the YAML pool settings.
func (p PoolYAMLConfig) PoolConfig() model.PoolConfig {
	def := model.DefaultPoolConfig()
	pc := model.PoolConfig{
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: Duration(p.ConnMaxLifetime, def.ConnMaxLifetime),
		ConnMaxIdleTime: Duration(p.ConnMaxIdleTime, def.ConnMaxIdleTime),
	}
	if pc.MaxOpenConns <= 0 {
		pc.MaxOpenConns = def.MaxOpenConns
	}
	if pc.MaxIdleConns <= 0 {
		pc.MaxIdleConns = def.MaxIdleConns
	}
	return pc
}

// Policy returns the parsed hardware policy. Validate reports bad values.
func (r RedemptionConfig) Policy() lifecycle.HardwarePolicy {
	p, err := lifecycle.ParseHardwarePolicy(r.HardwarePolicy)
	if err != nil {
		return lifecycle.HardwarePermissive
	}
	return p
}
