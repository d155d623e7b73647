package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/picklr-io/deployr/internal/ir"
)

// Memory is a process-local backend for ephemeral networks. Nothing is persisted.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(ctx context.Context) (*ir.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := emptyState(0)
	if m.data == nil {
		return st, nil
	}
	if err := json.Unmarshal(m.data, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Write keeps a serialized copy so callers cannot mutate stored records.
func (m *Memory) Write(ctx context.Context, st *ir.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return fmt.Errorf("%w (in-memory state)", ErrLocked)
	}
	m.locked = true
	return nil
}

func (m *Memory) Unlock(ctx context.Context) error {
	m.mu.Lock()
	m.locked = false
	m.mu.Unlock()
	return nil
}
