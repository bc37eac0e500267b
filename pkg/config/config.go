// Package config loads and validates service configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fluxor-io/fluxor/pkg/resilience"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var validate = validator.New()

// Config is the on-disk service configuration. Zero-valued sections fall
// back to defaults.
type Config struct {
	LogLevel   string            `json:"log_level"   validate:"omitempty,oneof=debug info warn error"`
	Web        WebConfig         `json:"web"`
	EventBus   EventBusConfig    `json:"event_bus"`
	DeadLetter DeadLetterConfig  `json:"dead_letter"`
	Policy     resilience.Policy `json:"policy"`
}

// WebConfig configures the HTTP inspection API.
type WebConfig struct {
	Addr string `json:"addr"`
}

// EventBusConfig selects the event distribution channel.
type EventBusConfig struct {
	Kind string `json:"kind" validate:"omitempty,oneof=none gochannel kafka"`
}

// DeadLetterConfig selects where exhausted items are routed.
type DeadLetterConfig struct {
	Kind        string `json:"kind" validate:"omitempty,oneof=none memory log redis postgres publisher"`
	RedisAddr   string `json:"redis_addr"`
	RedisList   string `json:"redis_list"`
	DatabaseURL string `json:"database_url"`
	Table       string `json:"table"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Web:        WebConfig{Addr: ":9090"},
		EventBus:   EventBusConfig{Kind: "gochannel"},
		DeadLetter: DeadLetterConfig{Kind: "log"},
		Policy:     resilience.DefaultPolicy(),
	}
}

// schema is the structural contract a config file must satisfy before it is
// unmarshalled. Semantic checks happen afterwards via struct validation.
const schema = `{
	"type": "object",
	"properties": {
		"log_level": {"type": "string"},
		"web": {
			"type": "object",
			"properties": {"addr": {"type": "string"}}
		},
		"event_bus": {
			"type": "object",
			"properties": {"kind": {"type": "string"}}
		},
		"dead_letter": {
			"type": "object",
			"properties": {
				"kind": {"type": "string"},
				"redis_addr": {"type": "string"},
				"redis_list": {"type": "string"},
				"database_url": {"type": "string"},
				"table": {"type": "string"}
			}
		},
		"policy": {"type": "object"}
	},
	"additionalProperties": false
}`

// Load reads and validates a configuration file, filling unset sections
// from Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse validates and decodes raw configuration bytes.
func Parse(data []byte) (Config, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Config{}, fmt.Errorf("failed to validate config: %w", err)
	}

	if !result.Valid() {
		return Config{}, fmt.Errorf("invalid config: %s", result.Errors()[0])
	}

	cfg := Default()

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads the file when it exists and silently falls back to
// defaults when it does not. A malformed file is still an error.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}
