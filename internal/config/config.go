// Package config loads daycast settings.
//
// Settings come from, in increasing priority: built-in defaults, the
// daycast.yaml file in the daycast home, DAYCAST_* environment variables
// (a .env file in the home or working directory is loaded first), and
// command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. DAYCAST_API_BASE_URL.
const EnvPrefix = "DAYCAST"

// FileName is the config file name inside the daycast home.
const FileName = "daycast.yaml"

// Config holds every setting the CLI and daemon read.
type Config struct {
	DataDir      string             `yaml:"data_dir" mapstructure:"data_dir"`
	API          APIConfig          `yaml:"api" mapstructure:"api"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Sync         SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Reachability ReachabilityConfig `yaml:"reachability" mapstructure:"reachability"`
	Dashboard    DashboardConfig    `yaml:"dashboard" mapstructure:"dashboard"`
	Inbox        InboxConfig        `yaml:"inbox" mapstructure:"inbox"`
}

// APIConfig configures the remote client.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	ClientID  string        `yaml:"client_id" mapstructure:"client_id"`
	Token     string        `yaml:"token,omitempty" mapstructure:"token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// SyncConfig configures the queue and drain.
type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	PrefetchDays int           `yaml:"prefetch_days" mapstructure:"prefetch_days"`
}

// CacheConfig configures retention.
type CacheConfig struct {
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// ReachabilityConfig configures the health probe and interface observer.
type ReachabilityConfig struct {
	ProbeTimeout  time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	ProbeStep     time.Duration `yaml:"probe_step" mapstructure:"probe_step"`
	ProbeMax      time.Duration `yaml:"probe_max" mapstructure:"probe_max"`
	InterfacePoll time.Duration `yaml:"interface_poll" mapstructure:"interface_poll"`
}

// DashboardConfig configures the WebSocket dashboard.
type DashboardConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// InboxConfig configures the share inbox. An empty Dir disables it.
type InboxConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Options controls where Load looks.
type Options struct {
	// Home is the daycast home directory (default: Home())
	Home string

	// File is an explicit config file; it must exist when set
	File string

	// EnvFiles are dotenv files to load (default: <home>/.env and ./.env)
	EnvFiles []string
}

// Home returns $DAYCAST_HOME, or ~/.daycast.
func Home() string {
	if h := os.Getenv(EnvPrefix + "_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".daycast"
	}
	return filepath.Join(home, ".daycast")
}

// Defaults returns the built-in settings for a daycast home.
func Defaults(home string) Config {
	return Config{
		DataDir: home,
		API: APIConfig{
			BaseURL:  "http://localhost:8000/api/v1",
			ClientID: "daycast-cli",
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Sync: SyncConfig{
			PollInterval: 2 * time.Second,
			MaxRetries:   5,
			PrefetchDays: 3,
		},
		Cache: CacheConfig{
			RetentionDays: 20,
		},
		Reachability: ReachabilityConfig{
			ProbeTimeout:  5 * time.Second,
			ProbeStep:     5 * time.Second,
			ProbeMax:      15 * time.Second,
			InterfacePoll: 3 * time.Second,
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
	}
}

// SetDefaults registers every key with v so environment overrides apply
// even when no config file exists.
func SetDefaults(v *viper.Viper, home string) {
	d := Defaults(home)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.client_id", d.API.ClientID)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.prefetch_days", d.Sync.PrefetchDays)
	v.SetDefault("cache.retention_days", d.Cache.RetentionDays)
	v.SetDefault("reachability.probe_timeout", d.Reachability.ProbeTimeout)
	v.SetDefault("reachability.probe_step", d.Reachability.ProbeStep)
	v.SetDefault("reachability.probe_max", d.Reachability.ProbeMax)
	v.SetDefault("reachability.interface_poll", d.Reachability.InterfacePoll)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("inbox.dir", d.Inbox.Dir)
}

// Load reads settings into a Config. A missing config file is not an
// error unless opts.File names it.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	home := opts.Home
	if home == "" {
		home = Home()
	}

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{filepath.Join(home, ".env"), ".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	SetDefaults(v, home)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.max_retries must be positive")
	}
	if c.Cache.RetentionDays <= 0 {
		return fmt.Errorf("cache.retention_days must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d is out of range", c.Dashboard.Port)
	}
	return nil
}

// DBPath is the SQLite file holding the cache and queue.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "offline.db")
}

// TokenPath is the file holding the bearer token.
func (c *Config) TokenPath() string {
	return filepath.Join(c.DataDir, "token")
}

// LogPath is the rotated log file.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "logs", "daycast.log")
}

// WriteFile writes cfg as YAML to path. An existing file is kept unless
// force is set.
func WriteFile(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Tokens live in the token file only
	cfg.API.Token = ""
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename config: %w", err)
	}
	return nil
}
