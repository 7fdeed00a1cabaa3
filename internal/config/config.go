// Package config loads daemon settings from ~/.deckd.yaml, an explicit
// --config file and DECKD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyDataDir        = "data_dir"
	KeyDatabase       = "database"
	KeyPluginsDir     = "plugins_dir"
	KeyPort           = "port"
	KeySerialPorts    = "serial_ports"
	KeyLogLevel       = "log_level"
	KeyDefaultProfile = "default_profile"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. DECKD_PORT.
	EnvPrefix = "DECKD"
	// FileName is the config file looked up in the home directory.
	FileName = ".deckd"

	DefaultPort           = 57116
	DefaultLogLevel       = "info"
	DefaultProfile        = "Default"
	defaultDatabaseName   = "deckd.db"
	defaultPluginsDirName = "plugins"
)

var (
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
	ErrInvalidLogLevel = errors.New("log_level must be debug, info, warn or error")
	ErrEmptyProfile    = errors.New("default_profile must not be empty")
)

// Config is the resolved daemon configuration.
type Config struct {
	DataDir        string   `mapstructure:"data_dir"`
	Database       string   `mapstructure:"database"`
	PluginsDir     string   `mapstructure:"plugins_dir"`
	Port           int      `mapstructure:"port"`
	SerialPorts    []string `mapstructure:"serial_ports"`
	LogLevel       string   `mapstructure:"log_level"`
	DefaultProfile string   `mapstructure:"default_profile"`
}

// Load reads configuration. When file is empty, ~/.deckd.yaml is used if it
// exists; a missing default file is not an error. An explicit file must
// exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	dataDir := defaultDataDir()
	v.SetDefault(KeyDataDir, dataDir)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeySerialPorts, []string{})
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyDefaultProfile, DefaultProfile)
	v.SetDefault(KeyDatabase, "")
	v.SetDefault(KeyPluginsDir, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "file", used)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolve()
	return &cfg, nil
}

// resolve fills paths derived from the data directory.
func (c *Config) resolve() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, defaultDatabaseName)
	}
	if c.PluginsDir == "" {
		c.PluginsDir = filepath.Join(c.DataDir, defaultPluginsDirName)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.DefaultProfile) == "" {
		errs = append(errs, ErrEmptyProfile)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

// Addr is the hub listen address. The hub only listens on loopback.
func (c *Config) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "deckd")
	}
	return ".deckd"
}
