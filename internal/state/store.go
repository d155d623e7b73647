package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/picklr-io/deployr/internal/ir"
)

// Store is the record-level view of a Backend used by providers and commands.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	networkID uint64
}

func NewStore(backend Backend, networkID uint64) *Store {
	return &Store{backend: backend, networkID: networkID}
}

// Backend returns the underlying storage backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Get returns the record for name, or nil.
func (s *Store) Get(ctx context.Context, name string) (*ir.DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	return st.Find(name), nil
}

// List returns every record in the state.
func (s *Store) List(ctx context.Context) ([]*ir.DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	return st.Deployments, nil
}

// Put upserts rec and writes the state back with a bumped serial.
func (s *Store) Put(ctx context.Context, rec *ir.DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}
	if st.NetworkID != 0 && st.NetworkID != s.networkID {
		return fmt.Errorf("state belongs to network %d, not %d", st.NetworkID, s.networkID)
	}

	st.NetworkID = s.networkID
	if st.Lineage == "" {
		st.Lineage = uuid.NewString()
	}
	st.Serial++
	st.Upsert(rec)

	return s.backend.Write(ctx, st)
}

// Delete removes the record for name, if any.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}
	kept := st.Deployments[:0]
	for _, d := range st.Deployments {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(st.Deployments) {
		return nil
	}
	st.Deployments = kept
	st.Serial++
	return s.backend.Write(ctx, st)
}
