package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/picklr-io/deployr/internal/ir"
)

// Backend defines the interface for deployment state storage.
type Backend interface {
	// Read loads the state. A missing state is returned empty, never as an error.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock so only one run touches a network at a time.
	Lock(ctx context.Context) error

	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// DefaultDir is where local state files live when no directory is configured.
const DefaultDir = "deployments"

// NewBackend creates the state backend for one network.
// Ephemeral networks always get an in-memory backend.
func NewBackend(ctx context.Context, cfg *ir.StateConfig, network ir.NetworkContext) (Backend, error) {
	if network.Ephemeral {
		return NewMemory(), nil
	}
	if cfg == nil {
		cfg = &ir.StateConfig{Type: "local"}
	}

	switch cfg.Type {
	case "local", "":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		return NewManager(filepath.Join(dir, network.Name+".json")), nil
	case "s3":
		return newS3Backend(ctx, cfg.Config, network.Name)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown state backend type: %s", cfg.Type)
	}
}

func emptyState(networkID uint64) *ir.State {
	return &ir.State{Version: 1, NetworkID: networkID}
}
