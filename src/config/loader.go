package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Loader handles loading and merging configurations from multiple sources
type Loader struct {
	precedence ConfigPrecedence
	validator  *Validator
	explicit   string
	loaded     []LoadedFile
}

// LoadedFile records a configuration file that contributed to the result
type LoadedFile struct {
	Path   string
	Source ConfigSource
}

// NewLoader creates a new configuration loader
func NewLoader(precedence ConfigPrecedence) *Loader {
	return &Loader{
		precedence: precedence,
		validator:  NewValidator(),
	}
}

// WithFile makes the loader merge path last, after the local config. Unlike
// the standard locations, path must exist.
func (l *Loader) WithFile(path string) *Loader {
	l.explicit = path
	return l
}

// Loaded returns the files merged by the last Load, in merge order.
func (l *Loader) Loaded() []LoadedFile {
	return l.loaded
}

// Load loads configuration from all sources and merges them
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()
	l.loaded = nil

	sources := []struct {
		path   string
		source ConfigSource
	}{
		{l.precedence.SystemConfig, SourceSystem},
		{l.precedence.UserConfig, SourceUser},
		{l.precedence.ProjectConfig, SourceProject},
		{l.precedence.LocalConfig, SourceLocal},
	}

	for _, src := range sources {
		if src.path == "" {
			continue
		}

		cfg, err := l.loadFile(src.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s config from %s: %w", src.source, src.path, err)
		}
		config = l.mergeConfigs(config, cfg)
		l.loaded = append(l.loaded, LoadedFile{Path: src.path, Source: src.source})
	}

	if l.explicit != "" {
		cfg, err := l.loadFile(l.explicit)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", l.explicit, err)
		}
		config = l.mergeConfigs(config, cfg)
		l.loaded = append(l.loaded, LoadedFile{Path: l.explicit, Source: SourceLocal})
	}

	if l.precedence.EnvironmentPrefix != "" {
		if err := l.applyEnvironmentOverrides(config); err != nil {
			return nil, err
		}
	}

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &config, nil
}

// SaveFile saves configuration to a file
func (l *Loader) SaveFile(config *Config, path string) error {
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold an API key
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// mergeConfigs merges two configurations with the second taking precedence
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	// Merge API config
	if override.API.Provider != "" {
		result.API.Provider = override.API.Provider
	}
	if override.API.ServiceURL != "" {
		result.API.ServiceURL = override.API.ServiceURL
	}
	if override.API.APIKey != "" {
		result.API.APIKey = override.API.APIKey
	}
	if override.API.Timeout != 0 {
		result.API.Timeout = override.API.Timeout
	}
	if override.API.ModelID != "" {
		result.API.ModelID = override.API.ModelID
	}
	if override.API.Temperature != nil {
		result.API.Temperature = override.API.Temperature
	}
	if override.API.MaxTokens != nil {
		result.API.MaxTokens = override.API.MaxTokens
	}

	// Merge Chains config
	if override.Chains.BaseURL != "" {
		result.Chains.BaseURL = override.Chains.BaseURL
	}
	if override.Chains.Timeout != 0 {
		result.Chains.Timeout = override.Chains.Timeout
	}

	// Merge Storage config
	if override.Storage.Backend != "" {
		result.Storage.Backend = override.Storage.Backend
	}
	if override.Storage.Path != "" {
		result.Storage.Path = override.Storage.Path
	}

	result.Chat = l.mergeChat(result.Chat, override.Chat)

	// Merge Logging config
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}
	if override.Logging.File != "" {
		result.Logging.File = override.Logging.File
	}

	return &result
}

// mergeChat merges chat configurations
func (l *Loader) mergeChat(base, override ChatConfig) ChatConfig {
	result := base

	if override.DefaultMode != "" {
		result.DefaultMode = override.DefaultMode
	}
	if override.SaveDebounce != 0 {
		result.SaveDebounce = override.SaveDebounce
	}
	if override.FlushInterval != 0 {
		result.FlushInterval = override.FlushInterval
	}
	if override.RefreshInterval != 0 {
		result.RefreshInterval = override.RefreshInterval
	}

	return result
}

// applyEnvironmentOverrides applies environment variable overrides to config
func (l *Loader) applyEnvironmentOverrides(config *Config) error {
	prefix := l.precedence.EnvironmentPrefix + "_"

	overrides := []struct {
		key    string
		target *string
	}{
		{"PROVIDER", &config.API.Provider},
		{"SERVICE_URL", &config.API.ServiceURL},
		{"API_KEY", &config.API.APIKey},
		{"MODEL", &config.API.ModelID},
		{"CHAINS_URL", &config.Chains.BaseURL},
		{"STORAGE_BACKEND", &config.Storage.Backend},
		{"STORAGE_PATH", &config.Storage.Path},
		{"MODE", &config.Chat.DefaultMode},
		{"LOG_LEVEL", &config.Logging.Level},
		{"LOG_FORMAT", &config.Logging.Format},
		{"LOG_FILE", &config.Logging.File},
	}
	for _, s := range overrides {
		if v := os.Getenv(prefix + s.key); v != "" {
			*s.target = v
		}
	}

	if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ValidationError{Field: prefix + "TIMEOUT", Message: "invalid duration", Value: v}
		}
		config.API.Timeout = d
	}

	if v := os.Getenv(prefix + "TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ValidationError{Field: prefix + "TEMPERATURE", Message: "invalid number", Value: v}
		}
		config.API.Temperature = &t
	}

	if v := os.Getenv(prefix + "MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: prefix + "MAX_TOKENS", Message: "invalid integer", Value: v}
		}
		config.API.MaxTokens = &n
	}

	return nil
}
