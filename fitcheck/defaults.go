package fitcheck

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName = "fitcheck"

	DefaultStoreBackend = "file"
	DefaultDatabaseFile = "fitcheck.db"

	DefaultModelID      = "gemini-2.0-flash"
	DefaultSubModelID   = "gemini-2.0-flash-exp"
	DefaultSearchURL    = "http://in.pinterest.com/search/pins/?q=%s"
	DefaultMaxLoopCalls = 10

	PreferencesFile = "preferences.json"
	HistoryFile     = "chat_history.json"
	ResponsesFile   = "responses.json"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(userDataDir(), DefaultAppName, "users")
	DefaultInboxDir    = filepath.Join(userDataDir(), DefaultAppName, "inbox")
	DefaultDatabaseDSN = "file:" + filepath.Join(userDataDir(), DefaultAppName, DefaultDatabaseFile)
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
