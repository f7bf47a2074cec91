// Package config loads the station's runtime configuration from
// flags, environment variables and an optional config file, in that
// order of precedence, via viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything the station needs to start.
type Config struct {
	// Device is the path to the serial device the track signal and
	// console share, e.g. /dev/ttyUSB0. Empty means "use a local pty"
	// for development without hardware.
	Device string `mapstructure:"device"`

	// BaudRate is the console/UART line speed.
	BaudRate int `mapstructure:"baud_rate"`

	// TickPeriod is the scheduler's transmit decision interval.
	TickPeriod time.Duration `mapstructure:"tick_period"`

	// QueueCapacity bounds the scheduler's inbound packet queue.
	QueueCapacity int `mapstructure:"queue_capacity"`

	// CacheCapacity bounds the refresh cache's tracked-address count.
	CacheCapacity int `mapstructure:"cache_capacity"`

	// LogLevel is a logrus level name (e.g. "info", "debug").
	LogLevel string `mapstructure:"log_level"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Device:        "",
		BaudRate:      9600,
		TickPeriod:    8 * time.Millisecond,
		QueueCapacity: 20,
		CacheCapacity: 20,
		LogLevel:      "info",
	}
}

// Load builds a viper instance layering, highest precedence first:
// flags, environment variables prefixed FREEDCC_, and a freedcc.yaml
// config file (searched for in the given directories), over the
// package defaults.
func Load(flags *pflag.FlagSet, searchPaths ...string) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("device", defaults.Device)
	v.SetDefault("baud_rate", defaults.BaudRate)
	v.SetDefault("tick_period", defaults.TickPeriod)
	v.SetDefault("queue_capacity", defaults.QueueCapacity)
	v.SetDefault("cache_capacity", defaults.CacheCapacity)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix("freedcc")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("freedcc")
	v.SetConfigType("yaml")
	for _, path := range searchPaths {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
