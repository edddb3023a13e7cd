package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.driftchat, or $DRIFTCHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("DRIFTCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".driftchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// AppDBPath returns the sqlite database holding local storage and history.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "driftchat.db")
}

// PebbleDir returns the pebble directory used when storage.driver = "pebble".
func PebbleDir(name string) string {
	return filepath.Join(Dir(name), "pebble")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "driftchat.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
