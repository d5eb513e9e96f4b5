package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/rolebinder/internal/tracing"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ModulesPath is scanned recursively for module manifests, which are
	// registered as deferred references.
	ModulesPath string `mapstructure:"modules_path"`
	// ProbeDir is where the directory probe looks for candidate modules. Empty
	// means the directory of the running executable.
	ProbeDir      string   `mapstructure:"probe_dir"`
	ProbePatterns []string `mapstructure:"probe_patterns"`
	// DisableProbe turns environment probing off.
	DisableProbe bool `mapstructure:"disable_probe"`
	// References are manifest files loaded eagerly at startup.
	References []string `mapstructure:"references"`

	LogFormat  string         `mapstructure:"log_format"`
	LogLevel   string         `mapstructure:"log_level"`
	ServerPort int            `mapstructure:"server_port"`
	Tracing    tracing.Config `mapstructure:"tracing"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogFormat:  "text",
		LogLevel:   "info",
		ServerPort: 8080,
		Tracing:    tracing.DefaultConfig(),
	}
}

// NewConfig normalizes and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	var errs []error
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat))
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid server-port %d", cfg.ServerPort))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
