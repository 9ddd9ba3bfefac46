package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all driver configuration.
type Config struct {
	Compiler CompilerConfig `mapstructure:"compiler"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type CompilerConfig struct {
	// Tool is the registered tool name; empty selects the primary tool.
	Tool     string `mapstructure:"tool"`
	Encoding string `mapstructure:"encoding"`

	// CancelCheckInterval is how many file manager calls pass between two
	// samples of the cancellation predicate.
	CancelCheckInterval int `mapstructure:"cancel_check_interval"`

	// DependencyTracking installs the interception layer so generated
	// outputs are attributed to their sources.
	DependencyTracking bool `mapstructure:"dependency_tracking"`

	// Extensions are the registered compiler extensions to run. Empty
	// runs every registered extension.
	Extensions []string `mapstructure:"extensions"`

	// StateFile is where the CLI keeps source fingerprints between runs.
	// Empty disables up-to-date checks.
	StateFile string `mapstructure:"state_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type MetricsConfig struct {
	// Path receives the Prometheus text dump after each invocation.
	Path string `mapstructure:"path"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Compiler.CancelCheckInterval < 0 {
		warnings = append(warnings, fmt.Sprintf("compiler cancel_check_interval %d is negative, the default is used", c.Compiler.CancelCheckInterval))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside range [0.0, 1.0]", c.Tracing.SampleRate))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("log level '%s' is not recognised", c.Log.Level))
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		warnings = append(warnings, "audit is enabled but audit.path is empty, events go to stdout")
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compiler.encoding", "UTF-8")
	v.SetDefault("compiler.cancel_check_interval", 64)
	v.SetDefault("compiler.dependency_tracking", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from file and environment. An empty path reads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
