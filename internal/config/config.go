package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage type constants
const (
	StorageTypeFile   = "file"
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// EnvPrefix is prepended to every environment variable, e.g. LOBBY_LISTEN_ADDR
const EnvPrefix = "LOBBY"

// Config holds the lobby server configuration
type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	AdminAddr        string        `mapstructure:"admin_addr"`  // empty disables the admin HTTP server
	AdminToken       string        `mapstructure:"admin_token"` // bearer token for the admin API; empty leaves it open
	DataDir          string        `mapstructure:"data_dir"`
	StorageType      string        `mapstructure:"storage_type"`
	RedisURL         string        `mapstructure:"redis_url"`
	PortLow          int           `mapstructure:"port_low"`
	PortHigh         int           `mapstructure:"port_high"` // exclusive
	AdvertiseAddress string        `mapstructure:"advertise_address"`
	FrameTimeout     time.Duration `mapstructure:"frame_timeout"`
	TransferTimeout  time.Duration `mapstructure:"transfer_timeout"`
	MaxFrameBytes    int64         `mapstructure:"max_frame_bytes"`
	MaxUploadBytes   int64         `mapstructure:"max_upload_bytes"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	LogLevel         string        `mapstructure:"log_level"`
	PythonInterp     string        `mapstructure:"python_interpreter"`
}

var defaults = map[string]any{
	"listen_addr":        "0.0.0.0:8888",
	"admin_addr":         "127.0.0.1:8889",
	"admin_token":        "",
	"data_dir":           "server_data",
	"storage_type":       StorageTypeFile,
	"redis_url":          "redis://localhost:6379",
	"port_low":           9000,
	"port_high":          9100,
	"advertise_address":  "",
	"frame_timeout":      time.Minute,
	"transfer_timeout":   2 * time.Minute,
	"max_frame_bytes":    0,
	"max_upload_bytes":   0,
	"bcrypt_cost":        10,
	"log_level":          "info",
	"python_interpreter": "python3",
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"listen-addr":  "listen_addr",
	"admin-addr":   "admin_addr",
	"data-dir":     "data_dir",
	"storage-type": "storage_type",
	"redis-url":    "redis_url",
	"port-low":     "port_low",
	"port-high":    "port_high",
	"log-level":    "log_level",
}

// RegisterFlags adds the command-line overrides read by LoadWithFlags.
// Flags left unset fall through to the environment, the file and the defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen-addr", "", "Lobby TCP listen address")
	fs.String("admin-addr", "", "Admin HTTP listen address (empty disables)")
	fs.String("data-dir", "", "Directory for catalog files and installed games")
	fs.String("storage-type", "", "Catalog storage: file, memory or redis")
	fs.String("redis-url", "", "Redis URL when storage-type is redis")
	fs.Int("port-low", 0, "First game server port")
	fs.Int("port-high", 0, "Game server port range end (exclusive)")
	fs.String("log-level", "", "Log level: debug, info, warn or error")
}

// Load reads defaults, then the optional config file, then LOBBY_* environment variables.
// An empty path looks for gamelobby.yaml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// LoadWithFlags is Load with flags from RegisterFlags taking precedence over every other source
func LoadWithFlags(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gamelobby")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageTypeFile, StorageTypeMemory:
	case StorageTypeRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when storage_type is redis")
		}
	default:
		return fmt.Errorf("invalid storage_type %q: must be file, memory or redis", c.StorageType)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.PortLow <= 0 || c.PortHigh > 65536 || c.PortLow >= c.PortHigh {
		return fmt.Errorf("invalid port range [%d, %d)", c.PortLow, c.PortHigh)
	}
	if c.FrameTimeout < 0 || c.TransferTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// SlogLevel maps log_level to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
