package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/nerrad567/deskpilot/internal/result"
)

// ScriptExt is the file extension of action and step scripts.
const ScriptExt = ".json"

// Store reads action and step scripts from category directories.
//
// Scripts are read from disk on every call so edits take effect on the next
// trigger. Files may contain // and /* */ comments and trailing commas.
type Store struct {
	dirs []string
}

// NewStore creates a store that searches dirs in order.
func NewStore(dirs ...string) *Store {
	return &Store{dirs: dirs}
}

// LoadStepsOrActions returns the script text for nameOrPath as plain JSON.
//
// A value that names an existing file (absolute, or ending in .json) is read
// directly. Otherwise <dir>/<name>.json is tried in each directory.
func (s *Store) LoadStepsOrActions(nameOrPath string) result.Result {
	path, err := s.locate(nameOrPath)
	if err != nil {
		return result.FromError(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return result.FromError(fmt.Errorf("reading %s: %w", path, err))
	}
	return result.Success(string(jsonc.ToJSON(data)))
}

func (s *Store) locate(nameOrPath string) (string, error) {
	if nameOrPath == "" {
		return "", ErrEmptyName
	}
	if filepath.IsAbs(nameOrPath) || strings.HasSuffix(nameOrPath, ScriptExt) {
		if _, err := os.Stat(nameOrPath); err == nil {
			return nameOrPath, nil
		}
	}
	if !validName(nameOrPath) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, nameOrPath)
	}
	for _, dir := range s.dirs {
		path := filepath.Join(dir, nameOrPath+ScriptExt)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrScriptNotFound, nameOrPath)
}

// List returns the script names available in every directory, first
// directory first, without duplicates.
func (s *Store) List() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, dir := range s.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ScriptExt))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ScriptExt)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out, nil
}

// validName rejects names that would escape the script directories.
func validName(name string) bool {
	if strings.Contains(name, "..") || filepath.IsAbs(name) {
		return false
	}
	return !strings.ContainsAny(name, `\:`)
}
