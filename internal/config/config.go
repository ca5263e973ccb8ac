// Package config implements the gateway's layered configuration: a base
// file, an optional environment-specific file, an optional local override
// file, and environment variables — in that order of increasing priority —
// grounded on the teacher pack's viper/fsnotify configuration idiom.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("config")

// Dimension is one entry of permitted_resize_dimensions.
type Dimension struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// IPFS holds the optional local-node listing settings.
type IPFS struct {
	Enabled    bool   `mapstructure:"enabled"`
	BinaryPath string `mapstructure:"binary_path"`
}

// Config mirrors spec.md §6's recognized keys.
type Config struct {
	IPFSGateways            []string    `mapstructure:"ipfs_gateways"`
	IPFSCacheDirectory      string      `mapstructure:"ipfs_cache_directory"`
	UserAgent               string      `mapstructure:"user_agent"`
	ConnectTimeoutMS        int         `mapstructure:"connect_timeout"`
	PauseGatewaySeconds     int         `mapstructure:"pause_gateway_seconds"`
	DeleteAfterDays         int         `mapstructure:"delete_after_days"`
	MaxContentLength        int64       `mapstructure:"max_content_length"`
	ServerPort              int         `mapstructure:"server_port"`
	DBMaxConnections        int         `mapstructure:"db_max_connections"`
	DBMinConnections        int         `mapstructure:"db_min_connections"`
	PermittedResizeDimensions []Dimension `mapstructure:"permitted_resize_dimensions"`
	IPFS                    IPFS        `mapstructure:"ipfs"`

	DatabaseURL string `mapstructure:"database_url"`
}

// ConnectTimeout is ConnectTimeoutMS as a time.Duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// PauseGateway is PauseGatewaySeconds as a time.Duration.
func (c *Config) PauseGateway() time.Duration {
	return time.Duration(c.PauseGatewaySeconds) * time.Second
}

// DeleteAfter is DeleteAfterDays as a time.Duration.
func (c *Config) DeleteAfter() time.Duration {
	return time.Duration(c.DeleteAfterDays) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ipfs_gateways", []string{
		"https://ipfs.io",
		"https://cloudflare-ipfs.com",
		"https://dweb.link",
	})
	v.SetDefault("ipfs_cache_directory", "./cache")
	v.SetDefault("user_agent", "ipfs-cache-gateway/1.0")
	v.SetDefault("connect_timeout", 10_000)
	v.SetDefault("pause_gateway_seconds", 60)
	v.SetDefault("delete_after_days", 30)
	v.SetDefault("max_content_length", int64(100<<20))
	v.SetDefault("server_port", 8080)
	v.SetDefault("db_max_connections", 10)
	v.SetDefault("db_min_connections", 1)
	v.SetDefault("ipfs.enabled", false)
	v.SetDefault("ipfs.binary_path", "ipfs")
}

// Load reads base (e.g. "base.yaml"), an optional "<environment>.yaml", and
// an optional "local.yaml" from dir, in that priority order, then overlays
// environment variables using "__" as the nested-key separator (spec.md
// §6's configuration layering; grounded on mohamedhabas11-admin-bot's
// viper wiring and original_source/src/config.rs's layer order).
// DATABASE_URL and PORT are bound explicitly since spec.md calls them out
// by name rather than by the generic nested-key convention.
func Load(dir, environment string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName("base")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading base config: %w", err)
		}
		log.Warnw("no base config file found, using defaults", "dir", dir)
	}

	if environment != "" {
		if err := mergeLayer(v, dir, environment); err != nil {
			return nil, err
		}
	}
	if err := mergeLayer(v, dir, "local"); err != nil {
		return nil, err
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("server_port", "PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func mergeLayer(v *viper.Viper, dir, name string) error {
	layer := viper.New()
	layer.SetConfigType("yaml")
	layer.AddConfigPath(dir)
	layer.SetConfigName(name)
	if err := layer.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("reading %s config: %w", name, err)
	}
	return v.MergeConfigMap(layer.AllSettings())
}

// Watch reloads "local.yaml" on change and invokes onChange with the
// re-merged configuration. Reload errors are logged and the previous
// configuration is kept, matching the teacher's OnConfigChange idiom.
func Watch(dir, environment string, onChange func(*Config)) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetConfigName("local")

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("local config changed, reloading", "file", e.Name)
		cfg, err := Load(dir, environment)
		if err != nil {
			log.Warnw("failed to reload config, keeping previous", "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
