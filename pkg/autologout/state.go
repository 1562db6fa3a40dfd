package autologout

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// State is the client-held session record that survives a process restart:
// the bearer token, when the server issued it and the fixed TTL. Together
// they are enough to mirror the server-side expiry without contacting it.
type State struct {
	Token      string    `toml:"token"`
	IssuedAt   time.Time `toml:"issued_at"`
	TTLSeconds int64     `toml:"ttl_seconds"`
}

func (s State) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// ExpiresAt is the local mirror of the server-side expiry instant.
func (s State) ExpiresAt() time.Time {
	return s.IssuedAt.Add(s.TTL())
}

// FileStore persists State as a TOML file with owner-only permissions.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the persisted state. The second return is false when no state
// is stored.
func (f *FileStore) Load() (State, bool, error) {
	var state State
	_, err := toml.DecodeFile(f.Path, &state)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if state.Token == "" {
		return State{}, false, nil
	}
	return state, true, nil
}

func (f *FileStore) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}

	file, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(state)
}

// Clear removes the persisted state. Clearing absent state is a no-op.
func (f *FileStore) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
