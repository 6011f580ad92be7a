package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Calendar.Provider != ProviderOutlook {
		t.Errorf("provider = %q, want outlook", cfg.Calendar.Provider)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "listen: \":9000\"\ncalendar:\n  provider: ICS\n  go_live_date: \"2025-06-01\"\n  ics:\n    url: https://example.com/a.ics\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CALENDAR_ICS_URL", "https://example.com/b.ics")
	t.Setenv("STUDIO_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Calendar.Provider != ProviderICS {
		t.Errorf("provider = %q, want normalized ics", cfg.Calendar.Provider)
	}
	if cfg.Calendar.ICS.URL != "https://example.com/b.ics" {
		t.Errorf("ics url = %q, env override not applied", cfg.Calendar.ICS.URL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Calendar.WindowYears != 3 {
		t.Errorf("window years = %d, want default 3", cfg.Calendar.WindowYears)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSyncWindow(t *testing.T) {
	cfg := DefaultConfig()

	start, end, err := cfg.SyncWindow()
	if err != nil {
		t.Fatalf("SyncWindow() error = %v", err)
	}

	loc, _ := time.LoadLocation("Europe/Berlin")
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, loc); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2028, 1, 1, 0, 0, 0, 0, loc); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.Calendar.Provider = "google" }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"go live", func(c *Config) { c.Calendar.GoLiveDate = "01.01.2025" }},
		{"cron", func(c *Config) { c.Calendar.SyncCron = "every now and then" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OUTLOOK_TENANT_ID=tenant-from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUTLOOK_TENANT_ID", "")
	os.Unsetenv("OUTLOOK_TENANT_ID")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("OUTLOOK_TENANT_ID"); got != "tenant-from-dotenv" {
		t.Errorf("OUTLOOK_TENANT_ID = %q", got)
	}
}
