// Package config loads kvsql settings from defaults, an optional config
// file, KVSQL_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "KVSQL"

// Config holds every setting of the engine and the CLI.
type Config struct {
	Namespace  string       `mapstructure:"namespace"`
	SampleSize int          `mapstructure:"samplesize"`
	Order      OrderConfig  `mapstructure:"order"`
	Log        LogConfig    `mapstructure:"log"`
	Output     OutputConfig `mapstructure:"output"`
	Data       DataConfig   `mapstructure:"data"`
}

// OrderConfig sizes the ORDER BY buffer.
type OrderConfig struct {
	Lossy    bool `mapstructure:"lossy"`
	PageSize int  `mapstructure:"pagesize"`
}

// LogConfig configures the logger package.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format"` // json, text
	Source bool   `mapstructure:"source"`
}

// OutputConfig selects the result formatter.
type OutputConfig struct {
	Format string `mapstructure:"format"` // json, csv, table
}

// DataConfig describes loaded data.
type DataConfig struct {
	// PK is the column used as record key when loading files.
	PK string `mapstructure:"pk"`
}

// defaults are registered before anything is read.
var defaults = map[string]interface{}{
	"namespace":      "test",
	"samplesize":     1,
	"order.lossy":    false,
	"order.pagesize": 10000,
	"log.level":      "INFO",
	"log.format":     "text",
	"log.source":     false,
	"output.format":  "json",
	"data.pk":        "",
}

// flagKeys maps config keys to the command line flags that override them.
var flagKeys = map[string]string{
	"namespace":     "namespace",
	"samplesize":    "sample-size",
	"order.lossy":   "lossy-order",
	"log.level":     "log-level",
	"log.format":    "log-format",
	"output.format": "format",
	"data.pk":       "pk",
}

// Options tells Load where to look.
type Options struct {
	// Prefix of environment variables, e.g. "KVSQL". KVSQL_ORDER_LOSSY
	// sets order.lossy.
	Prefix string

	// File is an optional config file; any format viper reads works.
	File string

	// Flags, when set, override the other sources for flags the user
	// changed.
	Flags *pflag.FlagSet
}

// Load builds the configuration.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.File, err)
		}
	}

	// keys are known from the defaults, so AutomaticEnv works with
	// Unmarshal: KVSQL_ORDER_PAGESIZE -> order.pagesize
	if opts.Prefix != "" {
		v.SetEnvPrefix(opts.Prefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if opts.Flags != nil {
		for key, name := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if c.SampleSize < 1 {
		return fmt.Errorf("samplesize must be at least 1, got %d", c.SampleSize)
	}
	if c.Order.PageSize < 1 {
		return fmt.Errorf("order.pagesize must be at least 1, got %d", c.Order.PageSize)
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "jsonl", "csv", "table":
	default:
		return fmt.Errorf("unknown output format: %s", c.Output.Format)
	}
	return nil
}
