package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// FileStore persists one JSON file per workflow under StateDir, at
// <state_dir>/<workflow_id>.state.json, written via temp-file-then-rename.
type FileStore struct {
	StateDir string
}

// NewFileStore builds a FileStore rooted at stateDir, creating it if absent.
func NewFileStore(stateDir string) (*FileStore, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "creating state dir", err)
	}
	return &FileStore{StateDir: stateDir}, nil
}

func (f *FileStore) path(workflowID string) string {
	return filepath.Join(f.StateDir, workflowID+".state.json")
}

// Save writes state atomically: temp file + rename, then fsyncs the
// containing directory where the platform supports it.
func (f *FileStore) Save(ctx context.Context, state *WorkflowState) error {
	state.Version = CurrentVersion
	state.WrittenAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return orcerr.Wrap(orcerr.KindInternal, "marshalling state", err)
	}

	target := f.path(state.WorkflowID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return orcerr.Wrap(orcerr.KindInternal, "writing state temp file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return orcerr.Wrap(orcerr.KindInternal, "renaming state into place", err)
	}
	fsyncDir(f.StateDir)
	return nil
}

// fsyncDir best-effort fsyncs dir so the rename above survives a crash on
// platforms where that matters; failure here is not fatal to Save.
func fsyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// Load reads the last snapshot for workflowID.
func (f *FileStore) Load(ctx context.Context, workflowID string) (*WorkflowState, error) {
	data, err := os.ReadFile(f.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcerr.Wrap(orcerr.KindNotFound, fmt.Sprintf("no state for workflow %q", workflowID), err)
		}
		return nil, orcerr.Wrap(orcerr.KindInternal, "reading state file", err)
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, orcerr.Wrap(orcerr.KindStateCorrupt, "state file is not valid JSON", err)
	}
	if header.Version > CurrentVersion {
		return nil, orcerr.New(orcerr.KindIncompatibleVersion,
			fmt.Sprintf("state file version %d is newer than supported version %d", header.Version, CurrentVersion))
	}

	var state WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, orcerr.Wrap(orcerr.KindStateCorrupt, "decoding state file", err)
	}
	return &state, nil
}

// List returns cheap header-only summaries for every workflow with a
// snapshot on disk.
func (f *FileStore) List(ctx context.Context) ([]WorkflowSummary, error) {
	entries, err := os.ReadDir(f.StateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, orcerr.Wrap(orcerr.KindInternal, "listing state dir", err)
	}

	var out []WorkflowSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".state.json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".state.json")
		st, err := f.Load(ctx, id)
		if err != nil {
			continue // skip corrupt/unreadable snapshots rather than fail List entirely
		}
		out = append(out, WorkflowSummary{
			WorkflowID: st.WorkflowID,
			Status:     st.Status,
			CreatedAt:  st.CreatedAt,
			UpdatedAt:  st.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Prune removes snapshots per policy and returns the count removed.
func (f *FileStore) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	summaries, err := f.List(ctx)
	if err != nil {
		return 0, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt) })

	isTerminal := func(s WorkflowStatus) bool {
		return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
	}

	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	removed := 0
	for i, s := range summaries {
		if policy.TerminalOnly && !isTerminal(s.Status) {
			continue
		}
		shouldRemove := false
		if policy.RetentionDays > 0 && s.UpdatedAt.Before(cutoff) {
			shouldRemove = true
		}
		if policy.MaxStates > 0 && i >= policy.MaxStates {
			shouldRemove = true
		}
		if !shouldRemove {
			continue
		}
		if err := os.Remove(f.path(s.WorkflowID)); err != nil && !os.IsNotExist(err) {
			return removed, orcerr.Wrap(orcerr.KindInternal, "removing state file", err)
		}
		removed++
	}
	return removed, nil
}
