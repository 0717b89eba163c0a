// Package config loads application configuration from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/opslink/statuswatch/internal/domain"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: STATUSWATCH_DATABASE__URL.
const EnvPrefix = "STATUSWATCH_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Maintenance policies.
const (
	MaintenancePolicyRecord   = "record"
	MaintenancePolicySuppress = "suppress"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	JWT           JWTConfig           `koanf:"jwt"`
	Admin         AdminConfig         `koanf:"admin"`
	Monitor       MonitorConfig       `koanf:"monitor"`
	Status        StatusConfig        `koanf:"status"`
	Cache         CacheConfig         `koanf:"cache"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	Path            string        `koanf:"path"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig contains admin token settings.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// AdminConfig describes the single administrator principal.
type AdminConfig struct {
	Email        string `koanf:"email"`
	PasswordHash string `koanf:"password_hash"`
}

// MonitorConfig contains poll loop settings and the static service catalog.
type MonitorConfig struct {
	PanelURL          string           `koanf:"panel_url"`
	APIKey            string           `koanf:"api_key"`
	Interval          time.Duration    `koanf:"interval"`
	PollTimeout       time.Duration    `koanf:"poll_timeout"`
	PanelRateLimit    float64          `koanf:"panel_rate_limit"`
	Concurrency       int              `koanf:"concurrency"`
	Retention         time.Duration    `koanf:"retention"`
	MaintenancePolicy string           `koanf:"maintenance_policy"`
	Services          []domain.Service `koanf:"services"`
}

// StatusConfig contains aggregation windows for the status feed.
type StatusConfig struct {
	HistoryWindow  time.Duration `koanf:"history_window"`
	IncidentWindow time.Duration `koanf:"incident_window"`
}

// CacheConfig contains status snapshot cache settings. Caching is off when RedisURL is empty.
type CacheConfig struct {
	RedisURL  string        `koanf:"redis_url"`
	StatusTTL time.Duration `koanf:"status_ttl"`
}

// NotificationsConfig contains outbound notification settings.
type NotificationsConfig struct {
	Enabled     bool             `koanf:"enabled"`
	QueueSize   int              `koanf:"queue_size"`
	NumWorkers  int              `koanf:"num_workers"`
	SendTimeout time.Duration    `koanf:"send_timeout"`
	BaseURL     string           `koanf:"base_url"`
	Discord     DiscordConfig    `koanf:"discord"`
	Mattermost  MattermostConfig `koanf:"mattermost"`
}

// DiscordConfig contains Discord webhook settings.
type DiscordConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
}

// MattermostConfig contains Mattermost incoming webhook settings.
type MattermostConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
	IconURL    string `koanf:"icon_url"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                       "0.0.0.0",
		"server.port":                       "8080",
		"server.metrics_port":               "9090",
		"server.read_timeout":               15 * time.Second,
		"server.read_header_timeout":        5 * time.Second,
		"server.write_timeout":              30 * time.Second,
		"server.idle_timeout":               60 * time.Second,
		"server.shutdown_timeout":           15 * time.Second,
		"database.driver":                   DriverPostgres,
		"database.path":                     "uptime.db",
		"database.max_open_conns":           10,
		"database.max_idle_conns":           2,
		"database.conn_max_lifetime":        30 * time.Minute,
		"database.connect_timeout":          30 * time.Second,
		"database.connect_attempts":         5,
		"database.auto_migrate":             true,
		"log.level":                         "info",
		"log.format":                        "json",
		"jwt.access_token_duration":         12 * time.Hour,
		"monitor.interval":                  time.Minute,
		"monitor.poll_timeout":              10 * time.Second,
		"monitor.panel_rate_limit":          2.0,
		"monitor.concurrency":               8,
		"monitor.maintenance_policy":        MaintenancePolicyRecord,
		"status.history_window":             90 * 24 * time.Hour,
		"status.incident_window":            30 * 24 * time.Hour,
		"cache.status_ttl":                  15 * time.Second,
		"notifications.enabled":             true,
		"notifications.queue_size":          100,
		"notifications.num_workers":         2,
		"notifications.send_timeout":        10 * time.Second,
		"notifications.discord.username":    "Status",
		"notifications.mattermost.username": "Status",
	}
}

// Load reads configuration. Sources are applied in order, later ones win:
// built-in defaults, the YAML file at path (skipped when path is empty), environment variables.
// A .env file in the working directory is loaded into the process environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// envKey maps STATUSWATCH_DATABASE__MAX_OPEN_CONNS to database.max_open_conns.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}

	if c.Admin.Email != "" {
		if c.Admin.PasswordHash == "" {
			errs = append(errs, errors.New("admin.password_hash is required when admin.email is set"))
		}
		if c.JWT.SecretKey == "" {
			errs = append(errs, errors.New("jwt.secret_key is required when admin.email is set"))
		}
	}

	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.PollTimeout <= 0 || c.Monitor.PollTimeout >= c.Monitor.Interval {
		errs = append(errs, errors.New("monitor.poll_timeout must be positive and shorter than monitor.interval"))
	}
	if len(c.Monitor.Services) > 0 && c.Monitor.PanelURL == "" {
		errs = append(errs, errors.New("monitor.panel_url is required when services are configured"))
	}
	if c.Monitor.MaintenancePolicy != MaintenancePolicyRecord && c.Monitor.MaintenancePolicy != MaintenancePolicySuppress {
		errs = append(errs, fmt.Errorf("monitor.maintenance_policy must be %q or %q", MaintenancePolicyRecord, MaintenancePolicySuppress))
	}

	if c.Status.HistoryWindow <= 0 || c.Status.IncidentWindow <= 0 {
		errs = append(errs, errors.New("status windows must be positive"))
	}

	return errors.Join(errs...)
}
