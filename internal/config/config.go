// Package config loads saxpycl settings from defaults, an optional YAML file
// and SAXPYCL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/cwbudde/saxpycl/internal/cl"
)

// EnvPrefix is prepended to every environment override, e.g.
// SAXPYCL_KERNEL_PATH.
const EnvPrefix = "SAXPYCL"

// Config represents the application configuration
type Config struct {
	Backend    string        `mapstructure:"backend"`
	DeviceType string        `mapstructure:"device_type"`
	Kernel     KernelConfig  `mapstructure:"kernel"`
	Logging    LoggingConfig `mapstructure:"logging"`
	Output     OutputConfig  `mapstructure:"output"`
}

type KernelConfig struct {
	// Path to the kernel source. Empty selects the embedded SAXPY kernel.
	Path         string `mapstructure:"path"`
	EntryPoint   string `mapstructure:"entry_point"`
	BuildOptions string `mapstructure:"build_options"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputConfig struct {
	// Path of the JSON result record. Empty disables it.
	Path string `mapstructure:"path"`
	// Dir holds one record per run under runs/. Empty disables it.
	Dir string `mapstructure:"dir"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Backend:    string(cl.BackendHost),
		DeviceType: string(cl.DeviceTypeAll),
		Kernel: KernelConfig{
			Path:       "kernels/saxpy.cl",
			EntryPoint: "SAXPY",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file, environment, and defaults. Without
// cfgFile, ./saxpycl.yaml is read when present.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("saxpycl")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(cl.SupportedBackends(), cl.NormalizeBackend(c.Backend)) {
		return fmt.Errorf("backend must be one of: %v", cl.SupportedBackends())
	}

	if _, err := cl.ParseDeviceType(c.DeviceType); err != nil {
		return fmt.Errorf("device_type: %w", err)
	}

	if strings.TrimSpace(c.Kernel.EntryPoint) == "" {
		return errors.New("kernel.entry_point must not be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	return nil
}

// DeviceFilter returns the parsed device type. Call Validate first.
func (c *Config) DeviceFilter() cl.DeviceType {
	dt, err := cl.ParseDeviceType(c.DeviceType)
	if err != nil {
		return cl.DeviceTypeAll
	}
	return dt
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("device_type", cfg.DeviceType)

	v.SetDefault("kernel.path", cfg.Kernel.Path)
	v.SetDefault("kernel.entry_point", cfg.Kernel.EntryPoint)
	v.SetDefault("kernel.build_options", cfg.Kernel.BuildOptions)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("output.path", cfg.Output.Path)
	v.SetDefault("output.dir", cfg.Output.Dir)
}
