// Package appdir provides platform-native directory management for
// wirechat. It locates and creates the data directory that stores the
// configuration file, the persisted session cookies, and log files.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv is the environment variable to override the data directory.
	DirEnv = "WIRECHAT_DIR"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "config.yaml"

	// SessionFileName is the name of the persisted session cookie file.
	SessionFileName = "session.yaml"

	// LogFileName is the name of the default log file.
	LogFileName = "wirechat.log"
)

var (
	// cachedDir stores the resolved data directory to avoid repeated lookups.
	cachedDir string
	mu        sync.RWMutex
)

// Dir returns the wirechat data directory path.
// The directory is determined in the following order:
//  1. WIRECHAT_DIR environment variable (if set)
//  2. Platform-specific default:
//     - macOS: ~/Library/Application Support/Wirechat
//     - Linux: $XDG_DATA_HOME/wirechat or ~/.local/share/wirechat
//     - Windows: %APPDATA%\Wirechat
//
// This function only returns the path; it does not create the directory.
// Use EnsureDir() to create the directory if needed.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if cachedDir != "" {
		return cachedDir, nil
	}

	dir, err := resolveDir()
	if err != nil {
		return "", err
	}

	cachedDir = dir
	return dir, nil
}

// resolveDir calculates the data directory path.
func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", "Wirechat"), nil

	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Wirechat"), nil

	default:
		// Linux and other Unix-like systems
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataDir, "wirechat"), nil
	}
}

// EnsureDir creates the data directory if it doesn't exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// SessionPath returns the full path to the persisted session file.
func SessionPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SessionFileName), nil
}

// LogPath returns the full path to the default log file.
func LogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFileName), nil
}

// Reset clears the cached directory. Intended for tests that change
// WIRECHAT_DIR between cases.
func Reset() {
	mu.Lock()
	cachedDir = ""
	mu.Unlock()
}
