package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"token": "123:abc",
		"admins": [42],
		"notify": {"enabled": true, "monitor_interval_sec": 30}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "123:abc" || len(cfg.Admins) != 1 || cfg.Admins[0] != 42 {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if cfg.Notify.MonitorIntervalSec != 30 {
		t.Fatalf("file value not applied: %d", cfg.Notify.MonitorIntervalSec)
	}
	// untouched knobs keep their defaults
	if cfg.PollTimeoutSec != 25 || cfg.JobHistoryLimit != 50 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "token: 123:abc\nadmins: [7]\nlog_path: /tmp/kb.log\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogPath != "/tmp/kb.log" || cfg.Admins[0] != 7 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("KEENBOT_TOKEN", "env:token")
	t.Setenv("KEENBOT_ADMINS", "1,2")
	path := writeFile(t, "config.json", `{"token": "file:token", "admins": [9]}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "env:token" {
		t.Fatalf("env did not override token: %q", cfg.Token)
	}
	if len(cfg.Admins) != 2 || cfg.Admins[0] != 1 || cfg.Admins[1] != 2 {
		t.Fatalf("env did not override admins: %v", cfg.Admins)
	}
}

func TestMissingFileWithEnvToken(t *testing.T) {
	t.Setenv("KEENBOT_TOKEN", "123:abc")
	t.Setenv("KEENBOT_ADMINS", "42")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "123:abc" {
		t.Fatalf("token not taken from env: %q", cfg.Token)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"valid", func(c *Config) {}, true},
		{"empty token", func(c *Config) { c.Token = " " }, false},
		{"no admins", func(c *Config) { c.Admins = nil }, false},
		{"zero admin id", func(c *Config) { c.Admins = []int64{0} }, false},
		{"interval too short", func(c *Config) { c.Notify.MonitorIntervalSec = 1 }, false},
		{"poll timeout too long", func(c *Config) { c.PollTimeoutSec = 60 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Token = "123:abc"
			cfg.Admins = []int64{42}
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCooldownFor(t *testing.T) {
	n := &NotifyConfig{
		CooldownSec: 3600,
		CategoryCooldownSec: map[string]int{
			"disk":           21600,
			"service":        600,
			"service:nfqws2": 60,
		},
	}
	cases := []struct {
		category string
		want     time.Duration
	}{
		{"cpu", time.Hour},
		{"disk", 6 * time.Hour},
		{"service:nfqws2", time.Minute},
		{"service:hydraroute", 10 * time.Minute},
		{"log:bot", time.Hour},
	}
	for _, tc := range cases {
		if got := n.CooldownFor(tc.category); got != tc.want {
			t.Errorf("CooldownFor(%q) = %v, want %v", tc.category, got, tc.want)
		}
	}
}
