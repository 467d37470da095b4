package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment overrides, e.g. EVENTCAL_LISTEN.
const EnvPrefix = "EVENTCAL_"

// SourceConfig describes one event backend. Sources are tried in order; the
// first one returning events wins.
type SourceConfig struct {
	// Type is one of api, script, static, csv, ics.
	Type string `yaml:"type" json:"type" validate:"oneof=api script static csv ics"`
	// ID labels the source in logs. ICS sources use it as the event origin.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`
	// URL is the endpoint for api, script and ics sources. An api source
	// with no URL uses APIBaseURL.
	URL string `yaml:"url,omitempty" json:"url,omitempty" validate:"omitempty,url"`
	// Path is the file for static and csv sources.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Callback names the wrapper function of a script endpoint.
	Callback string `yaml:"callback,omitempty" json:"callback,omitempty"`
}

type EventsConfig struct {
	CacheMinutes        int `yaml:"cache_minutes" json:"cache_minutes" validate:"min=1"`
	HomeHorizonDays     int `yaml:"home_horizon_days" json:"home_horizon_days" validate:"min=1"`
	CalendarHorizonDays int `yaml:"calendar_horizon_days" json:"calendar_horizon_days" validate:"min=1"`
	MonthCellLimit      int `yaml:"month_cell_limit" json:"month_cell_limit" validate:"min=1"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db" validate:"min=0"`
}

type AvailabilityConfig struct {
	// BaseURL defaults to APIBaseURL.
	BaseURL        string `yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"min=1"`
	Concurrency    int    `yaml:"concurrency" json:"concurrency" validate:"min=1"`
	MemoSeconds    int    `yaml:"memo_seconds" json:"memo_seconds" validate:"min=0"`
	// Redis, when set, shares memoized lookups between instances.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

type RegistrationConfig struct {
	// BaseURL defaults to APIBaseURL.
	BaseURL        string `yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
	CutoffHours    int    `yaml:"cutoff_hours" json:"cutoff_hours" validate:"min=1"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"min=1"`
}

// SnapshotConfig controls the PNG capture of the month calendar.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Width   int    `yaml:"width" json:"width" validate:"min=0"`
	Height  int    `yaml:"height" json:"height" validate:"min=0"`
}

// BasicAuthConfig protects the admin endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA zone events are scheduled in. Empty means the
	// host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start" validate:"oneof=sunday monday"`

	// RefreshCron is a standard 5-field cron schedule for the forced event
	// reload (and snapshot, if enabled).
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`

	// CacheDir keeps the last good body of each remote feed. Empty disables
	// the disk fallback.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// APIBaseURL is the registration backend, e.g. https://api.example.org/api.
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url" validate:"omitempty,url"`

	Events       EventsConfig       `yaml:"events" json:"events"`
	Sources      []SourceConfig     `yaml:"sources" json:"sources" validate:"dive"`
	Availability AvailabilityConfig `yaml:"availability" json:"availability"`
	Registration RegistrationConfig `yaml:"registration" json:"registration"`
	Snapshot     SnapshotConfig     `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, protects the admin endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Sources: []SourceConfig{
			{Type: "api"},
			{Type: "static", Path: "./data/events.yaml"},
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart != "monday" {
		c.WeekStart = "sunday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	setDefault(&c.Events.CacheMinutes, 15)
	setDefault(&c.Events.HomeHorizonDays, 14)
	setDefault(&c.Events.CalendarHorizonDays, 180)
	setDefault(&c.Events.MonthCellLimit, 3)

	setDefault(&c.Availability.TimeoutSeconds, 10)
	setDefault(&c.Availability.Concurrency, 8)
	if c.Availability.MemoSeconds < 0 {
		c.Availability.MemoSeconds = 0
	}
	setDefault(&c.Registration.CutoffHours, 24)
	setDefault(&c.Registration.TimeoutSeconds, 15)

	if c.Snapshot.Path == "" {
		c.Snapshot.Path = "./cache/calendar.png"
	}
	setDefault(&c.Snapshot.Width, 1200)
	setDefault(&c.Snapshot.Height, 900)

	for i := range c.Sources {
		c.Sources[i].Type = strings.ToLower(strings.TrimSpace(c.Sources[i].Type))
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = c.Sources[i].Type
		}
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// ApplyEnv loads .env (if present) and applies EVENTCAL_* overrides.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := getEnv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getEnv("API_BASE_URL"); v != "" {
		c.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := getEnv("TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("REDIS_ADDR"); v != "" {
		if c.Availability.Redis == nil {
			c.Availability.Redis = &RedisConfig{}
		}
		c.Availability.Redis.Addr = v
	}
	if v := getEnv("CACHE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Events.CacheMinutes = n
		}
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports configuration errors that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
		}
	}
	for i, s := range c.Sources {
		switch s.Type {
		case "api":
			if s.URL == "" && c.APIBaseURL == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: api source needs url or api_base_url", i))
			}
		case "script", "ics":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: %s source needs url", i, s.Type))
			}
		case "static", "csv":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: %s source needs path", i, s.Type))
			}
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

func (c *Config) AvailabilityBaseURL() string {
	if c.Availability.BaseURL != "" {
		return strings.TrimRight(c.Availability.BaseURL, "/")
	}
	return c.APIBaseURL
}

func (c *Config) RegistrationBaseURL() string {
	if c.Registration.BaseURL != "" {
		return strings.TrimRight(c.Registration.BaseURL, "/")
	}
	return c.APIBaseURL
}

func (c *Config) BasicAuthEnabled() bool {
	return c.BasicAuth != nil && c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// Load reads the YAML config at path, applies environment overrides and
// validates the result.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and used.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
