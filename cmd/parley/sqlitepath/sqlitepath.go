// Package sqlitepath locates the SQLite transcript archive.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

// FileName is the archive file created inside the .parley directory.
const FileName = "parley.sqlite"

// ErrNotFound is returned when no archive exists at any candidate path.
var ErrNotFound = errors.New("could not find parley transcript archive; pass --sqlite")

// ResolveSQLitePath returns override when set, otherwise the first existing
// archive among the candidate locations.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates(configDir) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

// DefaultSQLitePath returns the archive path inside the resolved .parley
// directory, creating the directory when needed.
func DefaultSQLitePath(configDir string) (string, error) {
	return dotdir.NewManager().Path(configDir, FileName)
}

func sqliteCandidates(configDir string) []string {
	candidates := []string{
		filepath.Join(".parley", FileName),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".parley", FileName))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "parley", FileName))
	}

	if configDir != "" {
		candidates = append([]string{filepath.Join(configDir, FileName)}, candidates...)
	}

	return candidates
}
