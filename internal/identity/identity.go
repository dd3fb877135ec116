// Package identity keeps the client's session id across restarts so a
// reconnecting player rejoins the seat it held.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh session id.
func New() string {
	return uuid.NewString()
}

// Load reads the session id stored at path, creating and storing a new one
// when the file is missing or does not hold a valid id. An empty path yields
// a fresh, unsaved id.
func Load(path string) (string, error) {
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read session file: %w", err)
	}

	id := New()
	if err := Save(path, id); err != nil {
		return "", err
	}
	return id, nil
}

func Save(path, id string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
