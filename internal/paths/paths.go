// Package paths resolves the per-user directories scriptrunner reads and writes.
package paths

import (
	"errors"
	"os"
	"path/filepath"
)

const appName = "scriptrunner"

// base is one XDG base directory: the variable that overrides it, the
// platform lookup, and the path under $HOME used when both are missing.
type base struct {
	env      string
	platform func() (string, error)
	home     []string
}

var (
	configBase = base{env: "XDG_CONFIG_HOME", platform: os.UserConfigDir, home: []string{".config"}}
	stateBase  = base{env: "XDG_STATE_HOME", home: []string{".local", "state"}}
)

// dir returns the scriptrunner directory under b joined with elem.
// A relative XDG value is ignored.
func (b base) dir(elem ...string) (string, error) {
	root, err := b.root()
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{root, appName}, elem...)...), nil
}

func (b base) root() (string, error) {
	if v := os.Getenv(b.env); filepath.IsAbs(v) {
		return v, nil
	}

	var platformErr error
	if b.platform != nil {
		root, err := b.platform()
		if err == nil && root != "" {
			return root, nil
		}

		platformErr = err
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(append([]string{home}, b.home...)...), nil
	}

	return "", errors.Join(errors.New("resolve "+b.env+": no home directory"), platformErr, err)
}

// ConfigFile returns the path of the persisted config.yaml.
func ConfigFile() (string, error) { return configBase.dir("config.yaml") }

// LogsDir returns the default log directory.
func LogsDir() (string, error) { return stateBase.dir("logs") }

// DefaultLogFile returns the log file used when no sink is configured.
func DefaultLogFile() (string, error) { return stateBase.dir("logs", appName+".log") }

// HistoryDir returns the default run transcript directory.
func HistoryDir() (string, error) { return stateBase.dir("history") }

// SavedTabsDir returns where tab contents are written by the save action.
func SavedTabsDir() (string, error) { return stateBase.dir("saved") }
