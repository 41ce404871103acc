// Package config loads framework settings from a config file and RPC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"envelope-rpc/logger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Registry RegistryConfig `mapstructure:"registry"`
	Log      logger.Config  `mapstructure:"log"`
}

type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	Advertise      string        `mapstructure:"advertise"` // Routable address published to the registry
	Workers        int           `mapstructure:"workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // Requests per second, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
	RegisterTTL    int64         `mapstructure:"register_ttl"` // Seconds
}

// ClientConfig holds dispatcher defaults. Per-call values on the envelope
// take precedence.
type ClientConfig struct {
	SerializeType        int           `mapstructure:"serialize_type"`
	SerializeFactoryType int           `mapstructure:"serialize_factory_type"`
	Timeout              time.Duration `mapstructure:"timeout"`
	PoolSize             int           `mapstructure:"pool_size"`
}

type RegistryConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.advertise", "127.0.0.1:8080")
	v.SetDefault("server.workers", 256)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.register_ttl", 10)

	v.SetDefault("client.serialize_type", 0)
	v.SetDefault("client.serialize_factory_type", 0)
	v.SetDefault("client.timeout", 3*time.Second)
	v.SetDefault("client.pool_size", 2)

	v.SetDefault("registry.endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("registry.dial_timeout", 3*time.Second)

	d := logger.DefaultConfig()
	v.SetDefault("log.level", d.Level)
	v.SetDefault("log.format", d.Format)
	v.SetDefault("log.time_format", d.TimeFormat)
	v.SetDefault("log.output", d.Output)
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads path (any format viper understands) when non-empty, then
// applies environment overrides such as RPC_CLIENT_TIMEOUT=500ms.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Workers <= 0 {
		errs = append(errs, errors.New("server.workers must be positive"))
	}
	if c.Client.PoolSize <= 0 {
		errs = append(errs, errors.New("client.pool_size must be positive"))
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	if c.Client.SerializeType < 0 || c.Client.SerializeType > 255 {
		errs = append(errs, fmt.Errorf("client.serialize_type out of range: %d", c.Client.SerializeType))
	}
	return errors.Join(errs...)
}
