package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// FileLocker serialises writers to the same workflow_id on a single host
// using an O_EXCL lockfile, the single-process model a CLI invocation
// naturally runs under. It implements Locker.
type FileLocker struct {
	StateDir string
}

// NewFileLocker builds a FileLocker rooted at stateDir.
func NewFileLocker(stateDir string) *FileLocker {
	return &FileLocker{StateDir: stateDir}
}

func (l *FileLocker) lockPath(workflowID string) string {
	return filepath.Join(l.StateDir, workflowID+".lock")
}

// Lock implements statestore.Locker.
func (l *FileLocker) Lock(ctx context.Context, workflowID string) (func() error, error) {
	path := l.lockPath(workflowID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, orcerr.New(orcerr.KindConcurrentModification,
				fmt.Sprintf("workflow %q is already locked by another writer", workflowID))
		}
		return nil, orcerr.Wrap(orcerr.KindInternal, "acquiring file lock", err)
	}
	f.Close()

	release := func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return orcerr.Wrap(orcerr.KindInternal, "releasing file lock", err)
		}
		return nil
	}
	return release, nil
}
