// Package config loads the single immutable bot configuration. The file may
// be JSON (legacy installs) or YAML; environment variables override file
// values so the init script can inject the token without editing the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "/opt/etc/keenbot/config.json"

type NotifyConfig struct {
	Enabled   bool `json:"enabled" yaml:"enabled" env:"KEENBOT_NOTIFY_ENABLED"`
	Disk      bool `json:"disk" yaml:"disk"`
	CPU       bool `json:"cpu" yaml:"cpu"`
	Services  bool `json:"services" yaml:"services"`
	Internet  bool `json:"internet" yaml:"internet"`
	LogErrors bool `json:"log_errors" yaml:"log_errors"`
	Updates   bool `json:"updates" yaml:"updates"`

	// CooldownSec is the default minimum gap between repeated notifications
	// of one category. Categories with different noise profiles can override
	// it in CategoryCooldownSec (e.g. "disk": 21600).
	CooldownSec         int            `json:"cooldown_sec" yaml:"cooldown_sec"`
	CategoryCooldownSec map[string]int `json:"category_cooldown_sec,omitempty" yaml:"category_cooldown_sec,omitempty"`

	MonitorIntervalSec       int     `json:"monitor_interval_sec" yaml:"monitor_interval_sec"`
	DiskFreeMBThreshold      int     `json:"disk_free_mb_threshold" yaml:"disk_free_mb_threshold"`
	CPULoadThreshold         float64 `json:"cpu_load_threshold" yaml:"cpu_load_threshold"`
	InternetCheckIntervalSec int     `json:"internet_check_interval_sec" yaml:"internet_check_interval_sec"`

	// OpkgCheckCron gates the expensive opkg update/list-upgradable probe;
	// evaluated once per minute against the monitor clock.
	OpkgCheckCron string `json:"opkg_check_cron" yaml:"opkg_check_cron"`

	LogFiles []LogWatch `json:"log_files,omitempty" yaml:"log_files,omitempty"`
}

// LogWatch names one log file scanned incrementally for error lines.
type LogWatch struct {
	Tag  string `json:"tag" yaml:"tag"`
	Path string `json:"path" yaml:"path"`
}

type AwgConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

type GatewayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	APIKey  string `json:"api_key" yaml:"api_key" env:"KEENBOT_API_KEY"`
}

type Config struct {
	Token        string  `json:"token" yaml:"token" env:"KEENBOT_TOKEN"`
	Admins       []int64 `json:"admins" yaml:"admins" env:"KEENBOT_ADMINS" envSeparator:","`
	AllowedChats []int64 `json:"allowed_chats,omitempty" yaml:"allowed_chats,omitempty" env:"KEENBOT_ALLOWED_CHATS" envSeparator:","`

	Debug   bool   `json:"debug" yaml:"debug" env:"KEENBOT_DEBUG"`
	LogPath string `json:"log_path" yaml:"log_path" env:"KEENBOT_LOG_PATH"`

	PollTimeoutSec    int `json:"poll_timeout_sec" yaml:"poll_timeout_sec"`
	CommandTimeoutSec int `json:"command_timeout_sec" yaml:"command_timeout_sec"`
	MaxOutputBytes    int `json:"max_output_bytes" yaml:"max_output_bytes"`
	JobHistoryLimit   int `json:"job_history_limit" yaml:"job_history_limit"`

	StorePath string `json:"store_path" yaml:"store_path" env:"KEENBOT_STORE_PATH"`

	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
	Awg     AwgConfig     `json:"awg" yaml:"awg"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`

	HydraWebPort int `json:"hydra_web_port" yaml:"hydra_web_port"`
	NfqwsWebPort int `json:"nfqws_web_port" yaml:"nfqws_web_port"`

	path string
}

// Defaults returns a config with every knob at its shipped value.
func Defaults() *Config {
	return &Config{
		LogPath:           "/opt/var/log/keenbot.log",
		PollTimeoutSec:    25,
		CommandTimeoutSec: 10,
		MaxOutputBytes:    64 * 1024,
		JobHistoryLimit:   50,
		StorePath:         "/opt/var/lib/keenbot/keenbot.db",
		Notify: NotifyConfig{
			Enabled:                  true,
			Disk:                     true,
			CPU:                      true,
			Services:                 true,
			Internet:                 true,
			LogErrors:                true,
			Updates:                  true,
			CooldownSec:              3600,
			MonitorIntervalSec:       60,
			DiskFreeMBThreshold:      64,
			CPULoadThreshold:         4.0,
			InternetCheckIntervalSec: 300,
			OpkgCheckCron:            "0 */6 * * *",
			LogFiles: []LogWatch{
				{Tag: "bot", Path: "/opt/var/log/keenbot.log"},
				{Tag: "nfqws", Path: "/opt/var/log/nfqws2.log"},
				{Tag: "hydra", Path: "/opt/var/log/hrneo.log"},
			},
		},
		Awg:          AwgConfig{Host: "127.0.0.1", Port: 2222, TimeoutSec: 3},
		Gateway:      GatewayConfig{Enabled: true, Host: "127.0.0.1", Port: 8787},
		HydraWebPort: 2000,
		NfqwsWebPort: 80,
	}
}

// Load reads the config file at path (DefaultPath when empty), applies env
// overrides and validates. A missing file with env-provided token still works.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Defaults()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Validate refuses configurations the bot cannot safely start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("config: bot token is empty (set token in %s or KEENBOT_TOKEN)", c.path)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("config: admins list is empty; refusing to run an open bot")
	}
	for _, id := range c.Admins {
		if id == 0 {
			return fmt.Errorf("config: admin id 0 is not a valid Telegram user id")
		}
	}
	if c.Notify.MonitorIntervalSec < 5 {
		return fmt.Errorf("config: monitor_interval_sec must be >= 5, got %d", c.Notify.MonitorIntervalSec)
	}
	if c.PollTimeoutSec <= 0 || c.PollTimeoutSec > 50 {
		return fmt.Errorf("config: poll_timeout_sec must be in 1..50, got %d", c.PollTimeoutSec)
	}
	return nil
}

// Save rewrites the backing file. Only the explicit reconfiguration flow
// (debug toggle, notify toggles) calls this; everything else treats the
// config as immutable for the lifetime of the run.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config: no backing file")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isYAML(c.path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

// IsAdmin reports whether the user id may issue commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatAllowed reports whether commands are accepted from the chat beyond
// direct admin messages.
func (c *Config) ChatAllowed(chatID int64) bool {
	for _, id := range c.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

// CooldownFor returns the effective cooldown for a notification category.
// Subcategories like "service:nfqws" inherit the "service" override.
func (n *NotifyConfig) CooldownFor(category string) time.Duration {
	if n.CategoryCooldownSec != nil {
		if sec, ok := n.CategoryCooldownSec[category]; ok {
			return time.Duration(sec) * time.Second
		}
		if i := strings.IndexByte(category, ':'); i > 0 {
			if sec, ok := n.CategoryCooldownSec[category[:i]]; ok {
				return time.Duration(sec) * time.Second
			}
		}
	}
	return time.Duration(n.CooldownSec) * time.Second
}
