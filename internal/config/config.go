package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "pcal/internal/log"
)

// EnvPrefix prefixes every environment override, e.g. PCAL_DATA_DIR.
const EnvPrefix = "PCAL_"

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP feed.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// DataDir holds the calendar files or the SQLite database.
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`

	// Store selects the backend: "file" (default) or "sqlite".
	Store string `yaml:"store" toml:"store" json:"store"`

	// History commits every change of the file store to a git repository
	// in DataDir.
	History bool `yaml:"history" toml:"history" json:"history"`

	// Calendar is used when no -calendar flag is given.
	Calendar string `yaml:"calendar" toml:"calendar" json:"calendar"`

	// Timezone is the IANA zone for day boundaries and for times entered
	// without an offset. "Local" uses the system zone.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" toml:"week_start" json:"week_start"`

	// HorizonDays bounds listings of recurring events that never end.
	HorizonDays int `yaml:"horizon_days" toml:"horizon_days" json:"horizon_days"`

	// MaxOccurrences caps how many occurrences of one event are expanded.
	MaxOccurrences int `yaml:"max_occurrences" toml:"max_occurrences" json:"max_occurrences"`

	// DefaultDuration applies when an event is added without end or
	// duration, e.g. "1h".
	DefaultDuration string `yaml:"default_duration" toml:"default_duration" json:"default_duration"`

	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// Listen is the HTTP listen address for `pcal serve`.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// AgendaCron is the default schedule of `pcal agenda -every`.
	AgendaCron string `yaml:"agenda_cron" toml:"agenda_cron" json:"agenda_cron"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultStore           = "file"
	defaultCalendar        = "default"
	defaultTimezone        = "Local"
	defaultWeekStart       = "monday"
	defaultHorizonDays     = 365
	defaultMaxOccurrences  = 5000
	defaultDefaultDuration = "1h"
	defaultLogLevel        = "info"
	defaultListen          = "127.0.0.1:8080"
	defaultAgendaCron      = "0 8 * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:         DefaultDataDir(),
		Store:           defaultStore,
		Calendar:        defaultCalendar,
		Timezone:        defaultTimezone,
		WeekStart:       defaultWeekStart,
		HorizonDays:     defaultHorizonDays,
		MaxOccurrences:  defaultMaxOccurrences,
		DefaultDuration: defaultDefaultDuration,
		LogLevel:        defaultLogLevel,
		Listen:          defaultListen,
		AgendaCron:      defaultAgendaCron,
	}
}

// DefaultPath is the config file used when -config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pcal.yaml"
	}
	return filepath.Join(dir, "pcal", "config.yaml")
}

// DefaultDataDir is where calendars live unless data_dir says otherwise.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pcal"
	}
	return filepath.Join(home, ".local", "share", "pcal")
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	switch c.Store {
	case "file", "sqlite":
	default:
		c.Store = defaultStore
	}
	if c.Calendar == "" {
		c.Calendar = defaultCalendar
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.DefaultDuration == "" {
		c.DefaultDuration = defaultDefaultDuration
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.AgendaCron == "" {
		c.AgendaCron = defaultAgendaCron
	}
}

// Validate checks the fields Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Duration(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.AgendaCron); err != nil {
		return fmt.Errorf("agenda_cron %q: %w", c.AgendaCron, err)
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth: username is empty")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Duration parses DefaultDuration.
func (c *Config) Duration() (time.Duration, error) {
	d, err := time.ParseDuration(c.DefaultDuration)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("default_duration %q: want a non-negative duration like 1h or 30m", c.DefaultDuration)
	}
	return d, nil
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// Load loads configuration from path. A ".toml" extension selects TOML,
// anything else is YAML.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - A .env file next to the config and one in the working directory are
//     loaded into the environment without replacing variables already set.
//   - PCAL_* environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("default config written", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func loadDotEnv(paths ...string) {
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				appLog.Warn("ignoring .env file", "path", abs, "err", err)
			}
			continue
		}
		appLog.Debug(".env loaded", "path", abs)
	}
}

// applyEnv overrides fields from PCAL_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("DATA_DIR", &c.DataDir)
	str("STORE", &c.Store)
	str("CALENDAR", &c.Calendar)
	str("TIMEZONE", &c.Timezone)
	str("WEEK_START", &c.WeekStart)
	str("DEFAULT_DURATION", &c.DefaultDuration)
	str("LOG_LEVEL", &c.LogLevel)
	str("LISTEN", &c.Listen)
	str("AGENDA_CRON", &c.AgendaCron)
	if err := num("HORIZON_DAYS", &c.HorizonDays); err != nil {
		return err
	}
	if err := num("MAX_OCCURRENCES", &c.MaxOccurrences); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "HISTORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY: %w", EnvPrefix, err)
		}
		c.History = b
	}

	user, _ := lookup(EnvPrefix + "BASIC_AUTH_USERNAME")
	pass, _ := lookup(EnvPrefix + "BASIC_AUTH_PASSWORD")
	if user != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML, or TOML for a ".toml" path.
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

	data, err := marshal(path, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pcal-config-*.tmp")
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

func marshal(path string, cfg *Config) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
