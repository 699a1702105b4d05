package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

const appName = "chainpilot"

// StoragePaths contains paths for application storage
type StoragePaths struct {
	DatabasePath string
	SessionsDir  string
}

// GetDefaultStoragePaths returns default storage paths using XDG base directories
func GetDefaultStoragePaths() StoragePaths {
	// Sessions are runtime state, so they live under XDG_STATE_HOME
	return StoragePaths{
		DatabasePath: filepath.Join(xdg.StateHome, appName, "sessions.db"),
		SessionsDir:  filepath.Join(xdg.StateHome, appName, "sessions"),
	}
}

// GetDefaultLogPath returns the default log file path
func GetDefaultLogPath() string {
	return filepath.Join(xdg.StateHome, appName, "chainpilot.log")
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	systemConfigPath := filepath.Join("/etc", appName, "config.json")
	if runtime.GOOS == "windows" {
		systemConfigPath = filepath.Join(os.Getenv("PROGRAMDATA"), appName, "config.json")
	}

	return ConfigPrecedence{
		SystemConfig:      systemConfigPath,
		UserConfig:        filepath.Join(xdg.ConfigHome, appName, "config.json"),
		ProjectConfig:     filepath.Join("."+appName, "config.json"),
		LocalConfig:       filepath.Join("."+appName, "config.local.json"),
		EnvironmentPrefix: "CHAINPILOT",
	}
}
