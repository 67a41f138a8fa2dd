// Package handle persists the single most recently started upload job so a
// restarted process can recognize an in-flight job and keep polling it. One
// durable slot exists per state directory; starting a second upload
// overwrites it.
package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"chatlens/internal/api"
)

const (
	handleFileName = "upload_handle.json"
	lockFileName   = "upload_handle.lock"
)

// Handle is the persisted record of the most recent job.
type Handle struct {
	JobID  string               `json:"job_id"`
	Status api.ProcessingStatus `json:"status"`
}

// Store reads and writes the durable handle slot. A file lock guards the slot
// so two chatlens processes do not interleave partial writes; coordination
// beyond that is best-effort.
type Store struct {
	path string
	lock *flock.Flock
}

// NewStore builds a Store rooted at the provided state directory.
func NewStore(stateDir string) *Store {
	return &Store{
		path: filepath.Join(stateDir, handleFileName),
		lock: flock.New(filepath.Join(stateDir, lockFileName)),
	}
}

// Save persists the job id and status together. The write goes through a
// temp file and rename so readers never observe a torn handle.
func (s *Store) Save(jobID string, status api.ProcessingStatus) error {
	if jobID == "" {
		return errors.New("job id is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure handle directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock handle slot: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := json.MarshalIndent(Handle{JobID: jobID, Status: status}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode handle: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write handle: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace handle: %w", err)
	}
	return nil
}

// Load reads the persisted handle. ok is false when no handle exists.
func (s *Store) Load() (Handle, bool, error) {
	if err := s.lock.RLock(); err != nil {
		return Handle{}, false, fmt.Errorf("lock handle slot: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, false, nil
		}
		return Handle{}, false, fmt.Errorf("read handle: %w", err)
	}

	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, false, fmt.Errorf("decode handle: %w", err)
	}
	if h.JobID == "" {
		return Handle{}, false, nil
	}
	return h, true, nil
}

// Clear removes the durable slot.
func (s *Store) Clear() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock handle slot: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove handle: %w", err)
	}
	return nil
}
