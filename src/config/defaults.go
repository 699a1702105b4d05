package config

import (
	"time"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	paths := GetDefaultStoragePaths()
	return &Config{
		Version: "1.0",
		API: APIConfig{
			Provider: ProviderMock,
			Timeout:  10 * time.Minute,
		},
		Chains: ChainsConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Path:    paths.DatabasePath,
		},
		Chat: ChatConfig{
			DefaultMode:     "ask",
			SaveDebounce:    500 * time.Millisecond,
			FlushInterval:   150 * time.Millisecond,
			RefreshInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
