package session

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the base directory, mainly for tests and packaging.
const EnvHome = "TGBRIDGE_HOME"

// BaseDir returns $TGBRIDGE_HOME, or ~/.tgbridge.
func BaseDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgbridge")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// TelegramSessionPath returns the file holding the MTProto auth key.
func TelegramSessionPath(name string) string {
	return filepath.Join(Dir(name), "telegram.json")
}

// AppDBPath returns the app-owned messages.db path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "messages.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tgbridged.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// DotenvPaths returns the .env files consulted for API credentials, lowest
// precedence first: the base directory, then the working directory.
func DotenvPaths() []string {
	return []string{filepath.Join(BaseDir(), ".env"), ".env"}
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
