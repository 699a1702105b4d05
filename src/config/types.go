package config

import (
	"time"
)

// Config represents the complete chainpilot configuration
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// API configuration for the assistant backend
	API APIConfig `json:"api"`

	// Chains configures the chain catalog REST service
	Chains ChainsConfig `json:"chains"`

	// Storage selects where chat sessions are persisted
	Storage StorageConfig `json:"storage"`

	// Chat tunes streaming and persistence
	Chat ChatConfig `json:"chat"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// APIConfig contains assistant backend settings
type APIConfig struct {
	// Provider is the provider id: "mock" or "http"
	Provider string `json:"provider" validate:"required,provider"`

	// ServiceURL is the base URL of the chat service
	ServiceURL string `json:"service_url,omitempty" validate:"omitempty,url"`

	// APIKey is sent as a bearer token (prefer environment variables)
	APIKey string `json:"api_key,omitempty"`

	// Timeout for non-streaming requests
	Timeout time.Duration `json:"timeout,omitempty" validate:"min=0"`

	// ModelID requested when a session sets none
	ModelID string `json:"model_id,omitempty"`

	// Temperature for response generation (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens *int `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
}

// ChainsConfig contains chain service settings
type ChainsConfig struct {
	// BaseURL of the catalog service; empty disables proposal application
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`

	// Timeout for a single catalog request
	Timeout time.Duration `json:"timeout,omitempty" validate:"min=0"`
}

// StorageConfig selects the session backend
type StorageConfig struct {
	// Backend is "sqlite" or "file"
	Backend string `json:"backend" validate:"required,storage_backend"`

	// Path is the database file (sqlite) or directory (file)
	Path string `json:"path,omitempty"`
}

// ChatConfig contains chat behavior settings
type ChatConfig struct {
	DefaultMode     string        `json:"default_mode" validate:"required,mode"`
	SaveDebounce    time.Duration `json:"save_debounce,omitempty" validate:"min=0"`
	FlushInterval   time.Duration `json:"flush_interval,omitempty" validate:"min=0"`
	RefreshInterval time.Duration `json:"refresh_interval,omitempty" validate:"min=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" validate:"omitempty,log_level"`

	// Format of the log file: json or text
	Format string `json:"format,omitempty" validate:"omitempty,log_format"`

	// File receives a copy of every log record when set
	File string `json:"file,omitempty"`
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	// SystemConfig path
	SystemConfig string

	// UserConfig path
	UserConfig string

	// ProjectConfig path
	ProjectConfig string

	// LocalConfig path (not committed)
	LocalConfig string

	// EnvironmentPrefix for env var overrides
	EnvironmentPrefix string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceLocal       ConfigSource = "local"
	SourceEnvironment ConfigSource = "environment"
)

// Provider ids
const (
	ProviderMock = "mock"
	ProviderHTTP = "http"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)
