package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read directly by the loader.
const (
	envPrefix     = "DROPOUT_"
	envConfigFile = "DROPOUT_CONFIG"
	envAddr       = "DROPOUT_ADDR"
	envPort       = "PORT"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DROPOUT_CONFIG is set
//  3. env (prefix DROPOUT_)
//  4. PORT, unless DROPOUT_ADDR is set
func Load(_ context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: DROPOUT_ADDR, DROPOUT_MODEL_PATH, ...
	// Keys are flat so underscores are preserved to match koanf tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "allowed_origins" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := applyPort(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPort maps the conventional PORT variable onto Addr.
func applyPort(cfg *Config) error {
	port, ok := os.LookupEnv(envPort)
	if !ok || strings.TrimSpace(port) == "" {
		return nil
	}
	if _, set := os.LookupEnv(envAddr); set {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%w: PORT must be a number between 0 and 65535, got %q", ErrInvalidConfig, port)
	}
	cfg.Addr = ":" + strconv.Itoa(n)
	return nil
}

// Validate checks fields that the service cannot start without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ModelPath) == "":
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ScalerPath) == "":
		return fmt.Errorf("%w: scaler_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DatasetPath) == "":
		return fmt.Errorf("%w: dataset_path must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.ModelFormat) {
	case "", "auto", "json", "onnx":
	default:
		return fmt.Errorf("%w: unknown model_format %q", ErrInvalidConfig, c.ModelFormat)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	}
	if c.MaxRecentLimit <= 0 {
		return fmt.Errorf("%w: max_recent_limit must be positive", ErrInvalidConfig)
	}
	if c.AuditQueueSize < 0 {
		return fmt.Errorf("%w: audit_queue_size must not be negative", ErrInvalidConfig)
	}
	if c.AuditQueueSize > 0 && c.AuditWorkers <= 0 {
		return fmt.Errorf("%w: audit_workers must be positive when audit_queue_size is set", ErrInvalidConfig)
	}
	return nil
}

// Watch reloads the YAML file named by DROPOUT_CONFIG whenever it changes
// and hands the freshly layered Config to onChange. Reload failures go to
// onError and leave the previous configuration in place. Watching stops when
// ctx is done.
func Watch(ctx context.Context, onChange func(*Config), onError func(error)) error {
	path := os.Getenv(envConfigFile)
	if path == "" {
		return ErrNoConfigFile
	}
	fp := file.Provider(path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			onError(fmt.Errorf("%w: %v", ErrLoadConfig, err))
			return
		}
		cfg, err := Load(ctx)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrLoadConfig, path, err)
	}
	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
