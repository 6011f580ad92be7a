// Package config loads the service configuration from a YAML file, an optional
// .env file and environment variables, in that order of precedence (lowest first).
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

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOutlook = "outlook"
	ProviderICS     = "ics"

	dateLayout = "2006-01-02"
)

// CronParser accepts 5- or 6-field specs and descriptors such as "@every 15m".
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// OutlookConfig holds the Microsoft Graph app registration used for calendar reads.
type OutlookConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// UserID is the mailbox (id or UPN) whose calendar is synced.
	UserID       string `yaml:"user_id"`
	GraphBaseURL string `yaml:"graph_base_url"`
	AuthBaseURL  string `yaml:"auth_base_url"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// ICSConfig describes an ICS feed used instead of Outlook.
type ICSConfig struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CalendarConfig controls the appointment sync.
type CalendarConfig struct {
	Provider string `yaml:"provider"`
	// GoLiveDate is the fixed start of the sync window (YYYY-MM-DD).
	GoLiveDate  string `yaml:"go_live_date"`
	WindowYears int    `yaml:"window_years"`
	// SyncCron schedules background syncs; empty disables the scheduler.
	SyncCron string        `yaml:"sync_cron"`
	Outlook  OutlookConfig `yaml:"outlook"`
	ICS      ICSConfig     `yaml:"ics"`
}

// Config is the top-level configuration.
type Config struct {
	Listen         string         `yaml:"listen"`
	DataDir        string         `yaml:"data_dir"`
	LogLevel       string         `yaml:"log_level"`
	LogDevelopment bool           `yaml:"log_development"`
	Timezone       string         `yaml:"timezone"`
	Calendar       CalendarConfig `yaml:"calendar"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8099",
		DataDir:  "/data",
		LogLevel: "info",
		Timezone: "Europe/Berlin",
		Calendar: CalendarConfig{
			Provider:    ProviderOutlook,
			GoLiveDate:  "2025-01-01",
			WindowYears: 3,
			SyncCron:    "@every 15m",
			Outlook: OutlookConfig{
				GraphBaseURL: "https://graph.microsoft.com/v1.0",
				AuthBaseURL:  "https://login.microsoftonline.com",
				TimeoutSec:   30,
			},
			ICS: ICSConfig{TimeoutSec: 30},
		},
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	cal := &c.Calendar
	cal.Provider = strings.ToLower(strings.TrimSpace(cal.Provider))
	if cal.Provider == "" {
		cal.Provider = def.Calendar.Provider
	}
	if cal.GoLiveDate == "" {
		cal.GoLiveDate = def.Calendar.GoLiveDate
	}
	if cal.WindowYears <= 0 {
		cal.WindowYears = def.Calendar.WindowYears
	}
	if cal.Outlook.GraphBaseURL == "" {
		cal.Outlook.GraphBaseURL = def.Calendar.Outlook.GraphBaseURL
	}
	if cal.Outlook.AuthBaseURL == "" {
		cal.Outlook.AuthBaseURL = def.Calendar.Outlook.AuthBaseURL
	}
	cal.Outlook.GraphBaseURL = strings.TrimRight(cal.Outlook.GraphBaseURL, "/")
	cal.Outlook.AuthBaseURL = strings.TrimRight(cal.Outlook.AuthBaseURL, "/")
	if cal.Outlook.TimeoutSec <= 0 {
		cal.Outlook.TimeoutSec = def.Calendar.Outlook.TimeoutSec
	}
	if cal.ICS.TimeoutSec <= 0 {
		cal.ICS.TimeoutSec = def.Calendar.ICS.TimeoutSec
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Calendar.Provider {
	case ProviderOutlook, ProviderICS:
	default:
		return fmt.Errorf("calendar.provider: unknown provider %q", c.Calendar.Provider)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := c.GoLive(); err != nil {
		return err
	}
	if c.Calendar.SyncCron != "" {
		if _, err := CronParser.Parse(c.Calendar.SyncCron); err != nil {
			return fmt.Errorf("calendar.sync_cron: %w", err)
		}
	}
	return nil
}

// Location returns the studio timezone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GoLive returns the start of the sync window as midnight in the studio timezone.
func (c *Config) GoLive() (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, c.Calendar.GoLiveDate, c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar.go_live_date: %w", err)
	}
	return t, nil
}

// SyncWindow returns [goLive, goLive + windowYears).
func (c *Config) SyncWindow() (time.Time, time.Time, error) {
	start, err := c.GoLive()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(c.Calendar.WindowYears, 0, 0), nil
}

// DBPath is the SQLite file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "studio.db")
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and
// normalizes the result. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("STUDIO_LISTEN", c.Listen)
	c.DataDir = getEnv("STUDIO_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("STUDIO_LOG_LEVEL", c.LogLevel)
	c.LogDevelopment = getEnvBool("STUDIO_LOG_DEVELOPMENT", c.LogDevelopment)
	c.Timezone = getEnv("STUDIO_TIMEZONE", c.Timezone)

	c.Calendar.Provider = getEnv("CALENDAR_PROVIDER", c.Calendar.Provider)
	c.Calendar.GoLiveDate = getEnv("CALENDAR_GO_LIVE_DATE", c.Calendar.GoLiveDate)
	c.Calendar.SyncCron = getEnv("CALENDAR_SYNC_CRON", c.Calendar.SyncCron)
	c.Calendar.ICS.URL = getEnv("CALENDAR_ICS_URL", c.Calendar.ICS.URL)

	o := &c.Calendar.Outlook
	o.TenantID = getEnv("OUTLOOK_TENANT_ID", o.TenantID)
	o.ClientID = getEnv("OUTLOOK_CLIENT_ID", o.ClientID)
	o.ClientSecret = getEnv("OUTLOOK_CLIENT_SECRET", o.ClientSecret)
	o.UserID = getEnv("OUTLOOK_USER_ID", o.UserID)
}

// Save writes cfg atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studio-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
