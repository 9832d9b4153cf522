package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces the environment variables the loader reads.
const EnvPrefix = "MESHFLOW_"

// Load builds the effective configuration: struct defaults, then
// MESHFLOW_-prefixed environment variables, then explicit overrides keyed by
// koanf path ("server.port", "runtime.mode", ...). Nil override values are
// skipped so callers can pass unset flags straight through. The result is
// validated before it is returned.
func Load(overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load configuration defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment configuration: %w", err)
	}
	for key, value := range overrides {
		if value == nil {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}
	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// transformEnv converts one environment variable into its koanf path.
// Explicit env struct tags win; the fallback treats the first segment as the
// section and keeps the rest as a snake_case field name, so
// MESHFLOW_RUNTIME_MAX_NODES becomes runtime.max_nodes.
func transformEnv(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	if path, ok := envPaths()[key]; ok {
		return path, value
	}
	parts := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool { return r == '_' })
	switch len(parts) {
	case 0:
		return "", value
	case 1:
		return parts[0], value
	default:
		return parts[0] + "." + strings.Join(parts[1:], "_"), value
	}
}

var (
	envPathsOnce sync.Once
	envPathsMap  map[string]string
)

// envPaths maps explicit env tags to config paths, derived once from the
// Config struct tags.
func envPaths() map[string]string {
	envPathsOnce.Do(func() {
		envPathsMap = make(map[string]string)
		collectEnvPaths(reflect.TypeOf(Config{}), "", envPathsMap)
	})
	return envPathsMap
}

func collectEnvPaths(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("koanf")
		if name == "" || name == "-" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if tag := field.Tag.Get("env"); tag != "" && tag != "-" {
			out[tag] = path
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			collectEnvPaths(field.Type, path, out)
		}
	}
}

var structValidator = validator.New()

// Validate checks the configuration against its struct constraints plus the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.Events.Emitter == "redis" && cfg.Events.RedisURL == "" {
		return fmt.Errorf("configuration validation failed: events.redis_url is required when events.emitter is redis")
	}
	return nil
}
