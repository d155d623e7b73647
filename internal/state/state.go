package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/picklr-io/deployr/internal/ir"
)

// Manager stores one network's state as a JSON file on local disk.
type Manager struct {
	path string

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state file, transparently decrypting it.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyState(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	st, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return st, nil
}

// Write replaces the state file atomically.
// If DEPLOYR_STATE_ENCRYPTION_KEY is set, the file is encrypted.
func (m *Manager) Write(ctx context.Context, st *ir.State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}
	return nil
}

// Encode serializes and, when configured, encrypts a state.
func Encode(st *ir.State) ([]byte, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	sealed, err := Seal(append(data, '\n'))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return sealed, nil
}

// Decode reverses Encode.
func Decode(raw []byte) (*ir.State, error) {
	plain, err := Open(raw)
	if err != nil {
		return nil, err
	}
	st := emptyState(0)
	if err := json.Unmarshal(plain, st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return st, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it
// over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
