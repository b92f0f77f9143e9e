package config

import (
	"os"
	"path/filepath"
)

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultDBPath is where review state and preferences are stored.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), AppName, AppName+".db")
}

// DefaultConfigPath is the YAML file read when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), AppName, "config.yaml")
}
