package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application name.
	AppName = "Graphoria"

	// AppVersion is the current version.
	AppVersion = "1.0.0"

	// AppBundleID is the macOS bundle identifier.
	AppBundleID = "com.graphoria.app"

	// DBFileName is the SQLite file name.
	DBFileName = "graphoria_data.db"

	// DBPathEnv overrides the database location, mainly for tests and
	// sandboxed environments.
	DBPathEnv = "GRAPHORIA_DB_PATH"

	// KeyringService is the service name credentials are stored under.
	KeyringService = "Graphoria"

	// DefaultRemote is the remote used when callers pass none.
	DefaultRemote = "origin"
)

// DataDir returns the root data directory of the app.
func DataDir() string {
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// DBPath returns the SQLite file path.
func DBPath() string {
	return filepath.Join(DataDir(), DBFileName)
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// EnsureDataDirs creates the required directories.
func EnsureDataDirs() error {
	for _, dir := range []string{DataDir(), LogDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
