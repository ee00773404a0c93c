package transcript

import "github.com/cruft-ninja/script-runner/internal/paths"

// DefaultDir returns the default history directory.
func DefaultDir() (string, error) {
	return paths.HistoryDir()
}
