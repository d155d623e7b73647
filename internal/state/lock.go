package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/picklr-io/deployr/internal/logging"
)

// staleLockAge is how old a lock file may get before it is considered abandoned.
// A holder touches its lock every lockRefreshInterval, so only a dead holder's
// lock ever gets this old.
const staleLockAge = 10 * time.Minute

var lockRefreshInterval = staleLockAge / 4

// ErrLocked is returned when another run holds the state lock.
var ErrLocked = errors.New("state is locked by another process")

// Lock creates a lock file next to the state file.
func (m *Manager) Lock(ctx context.Context) error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > staleLockAge {
		os.Remove(lockPath)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w (lock file: %s). If this is an error, remove the lock file manually", ErrLocked, lockPath)
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	m.startRefresh(lockPath)
	return nil
}

// startRefresh keeps the lock file's mtime current until Unlock.
func (m *Manager) startRefresh(lockPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	interval := lockRefreshInterval

	m.stopped.Add(1)
	go func() {
		defer m.stopped.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := time.Now()
				if err := os.Chtimes(lockPath, now, now); err != nil {
					logging.Warn("failed to refresh state lock", "path", lockPath, "error", err)
				}
			}
		}
	}()
}

func (m *Manager) stopRefresh() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.mu.Unlock()
	m.stopped.Wait()
}

// Unlock removes the lock file.
func (m *Manager) Unlock(ctx context.Context) error {
	m.stopRefresh()
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
