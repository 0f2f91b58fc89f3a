package config

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/internal"
	"github.com/spf13/viper"
)

// Config represents a group of named values structured
// by tree type.
//
// Sub-trees are named configuration sub-sections,
// leaves are named configuration values.
// Names are of string type.
type Config struct {
	v *viper.Viper

	path []string
}

const separator = "."

// Option is an option of New.
type Option func(*opts)

type opts struct {
	path string
}

// WithConfigFile returns option to read values from the file. Format is
// chosen by the file extension.
func WithConfigFile(path string) Option {
	return func(o *opts) {
		o.path = path
	}
}

// New creates a new Config instance reading values from the environment
// and the configuration file if set. Without a file Config is a degenerate
// tree backed by the environment only.
func New(options ...Option) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(internal.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(separator, internal.EnvSeparator))

	var o opts
	for i := range options {
		options[i](&o)
	}

	if o.path != "" {
		v.SetConfigFile(o.path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return &Config{
		v: v,
	}, nil
}

// Sub returns subsection of the Config by name.
func (x *Config) Sub(name string) *Config {
	path := make([]string, len(x.path), len(x.path)+1)
	copy(path, x.path)

	return &Config{
		v:    x.v,
		path: append(path, name),
	}
}

// Value returns configuration value by name.
//
// Result can be casted to a particular type
// via corresponding function (e.g. Duration).
//
// Returns nil if the value is missing.
func (x *Config) Value(name string) any {
	return x.v.Get(strings.Join(append(x.path, name), separator))
}
