// Package config loads the driver configuration from defaults, an optional
// YAML file and MULTIVALUE_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-multivalue/errors"
	"github.com/wippyai/wasm-multivalue/runtime"
)

// EnvPrefix prefixes every environment override, e.g. MULTIVALUE_LOG_LEVEL
// or MULTIVALUE_WASM_MEMORY_LIMIT_PAGES.
const EnvPrefix = "MULTIVALUE"

type Config struct {
	LogLevel     string     `mapstructure:"log_level" yaml:"log_level"`
	LogDiscarded bool       `mapstructure:"log_discarded" yaml:"log_discarded"`
	Entry        string     `mapstructure:"entry" yaml:"entry"`
	Demo         string     `mapstructure:"demo" yaml:"demo"`
	HostName     string     `mapstructure:"host_name" yaml:"host_name"`
	Values       []int32    `mapstructure:"values" yaml:"values,flow"`
	Wasm         WasmConfig `mapstructure:"wasm" yaml:"wasm"`
}

// WasmConfig holds runtime limits.
type WasmConfig struct {
	// Memory limit per instance (in pages, 64KB each).
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" yaml:"memory_limit_pages"`
	// Guest call timeout in seconds. Zero disables it.
	ExecutionTimeout int `mapstructure:"execution_timeout" yaml:"execution_timeout"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_discarded", false)
	v.SetDefault("entry", "run")
	v.SetDefault("demo", "multivalue")
	v.SetDefault("host_name", "wazero")
	v.SetDefault("values", []int32{1, 2, 3, 4})

	v.SetDefault("wasm.memory_limit_pages", 256) // 16MB
	v.SetDefault("wasm.execution_timeout", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.IO("read config "+configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "decode config")
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("log_level: %v", err))
	}
	if c.Entry == "" {
		return errors.InvalidInput(errors.PhaseLoad, "entry cannot be empty")
	}
	if len(c.Values) != 4 {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("values: want 4 entries, got %d", len(c.Values)))
	}
	if c.Wasm.MemoryLimitPages > 65536 {
		return errors.InvalidInput(errors.PhaseLoad, "wasm.memory_limit_pages exceeds 65536")
	}
	if c.Wasm.ExecutionTimeout < 0 {
		return errors.InvalidInput(errors.PhaseLoad, "wasm.execution_timeout cannot be negative")
	}
	return nil
}

// Runtime returns the runtime settings.
func (c *Config) Runtime() runtime.Config {
	return runtime.Config{
		MemoryLimitPages:   c.Wasm.MemoryLimitPages,
		CloseOnContextDone: c.Wasm.ExecutionTimeout > 0,
	}
}

// Timeout returns the guest call timeout, zero when disabled.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Wasm.ExecutionTimeout) * time.Second
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
