package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigFileSize rejects config files large enough to be something
// else entirely.
const maxConfigFileSize = 1024 * 1024

// Load builds the configuration from three layers, lowest precedence
// first: hardcoded defaults, the YAML file at configPath (skipped when
// empty or absent), and DIAGRAMD_-prefixed environment variables.
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting section from field on the first
// underscore:
//
//	DIAGRAMD_LLM_MODEL          -> llm.model
//	DIAGRAMD_RATELIMIT_CAPACITY -> ratelimit.capacity
//	DIAGRAMD_OUTPUT_DIR         -> output.dir
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if len(content) > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("DIAGRAMD_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "DIAGRAMD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The API key is secret material: accept it from the conventional
	// variable as well so it never has to live in a file.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
