// Package config loads application settings from a config file and
// CLIPNOTE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Backend BackendConfig `mapstructure:"backend"`
	Storage StorageConfig `mapstructure:"storage"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Server  ServerConfig  `mapstructure:"server"`
}

type GeneralConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// BackendConfig points the client at its backend.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig locates the durable credential file. The guest session id is
// process-scoped and never touches disk.
type StorageConfig struct {
	StateDir string `mapstructure:"state_dir"`
}

// CredentialPath resolves the credential file, defaulting to a dotfile under
// the user's home directory.
func (s StorageConfig) CredentialPath() string {
	dir := s.StateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			dir = "."
		} else {
			dir = filepath.Join(home, ".clipnote")
		}
	}
	return filepath.Join(dir, "credentials.json")
}

// ChatConfig tunes readiness polling.
type ChatConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollBudget   time.Duration `mapstructure:"poll_budget"`
}

// ServerConfig configures the bundled reference backend.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	PrepStep        time.Duration `mapstructure:"prep_step"`
	GuestDailyLimit int           `mapstructure:"guest_daily_limit"`
	UserDailyLimit  int           `mapstructure:"user_daily_limit"`
}

func (s ServerConfig) Validate() error {
	if s.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required (or CLIPNOTE_SERVER_JWT_SECRET)")
	}
	return nil
}

// Load reads configuration from path, or from the usual lookup locations when
// path is empty. A missing config file is fine; defaults and environment
// variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("chat.poll_interval", 5*time.Second)
	v.SetDefault("chat.poll_budget", 60*time.Second)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.prep_step", 4*time.Second)
	v.SetDefault("server.guest_daily_limit", 5)
	v.SetDefault("server.user_daily_limit", 100)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".clipnote"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CLIPNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
