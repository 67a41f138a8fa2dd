package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Session is the persisted token pair for an authenticated client. ExpiresAt
// is informational; expiry decisions are made from the access token's own
// claim so a stale file cannot extend a token's life.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session holds a usable token pair.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.RefreshToken) != ""
}

// Store abstracts persistence for session state.
type Store interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

const stateFileName = "session.json"

// FileStore writes session state to a JSON file on disk.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at the provided state directory.
func NewFileStore(stateDir string) *FileStore {
	return &FileStore{path: filepath.Join(stateDir, stateFileName)}
}

// Load reads session state from disk. A missing file resolves to an empty session.
func (s *FileStore) Load() (Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, nil
		}
		return Session{}, fmt.Errorf("read session state: %w", err)
	}

	var state Session
	if err := json.Unmarshal(data, &state); err != nil {
		return Session{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

// Save persists session state to disk with restricted permissions.
func (s *FileStore) Save(state Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure session state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Clear removes the persisted session state.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session state: %w", err)
	}
	return nil
}
