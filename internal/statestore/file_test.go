package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestState(id string) *WorkflowState {
	return &WorkflowState{
		WorkflowID:       id,
		DefinitionDigest: "deadbeef",
		CorrelationID:    "corr-1",
		Status:           StatusRunning,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
		StepOrder:        []string{"a", "b"},
		Steps: map[string]*StepState{
			"a": {StepID: "a", Status: StepSucceeded},
			"b": {StepID: "b", Status: StepReady},
		},
	}
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	want := newTestState("wf-1")
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.WorkflowID != want.WorkflowID || got.Status != want.Status {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got.Steps))
	}
}

func TestFileStoreLoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	_, err := store.Load(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected an error for a missing workflow")
	}
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "wf-bad.state.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}

	_, err := store.Load(context.Background(), "wf-bad")
	if err == nil {
		t.Fatal("expected an error for a corrupt state file")
	}
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	ctx := context.Background()

	for _, id := range []string{"wf-a", "wf-b", "wf-c"} {
		if err := store.Save(ctx, newTestState(id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
}

func TestFileStorePruneByRetentionDays(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	ctx := context.Background()

	old := newTestState("wf-old")
	old.Status = StatusSucceeded
	old.UpdatedAt = time.Now().AddDate(0, 0, -30)
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("Save old: %v", err)
	}

	fresh := newTestState("wf-fresh")
	fresh.Status = StatusSucceeded
	fresh.UpdatedAt = time.Now()
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}

	removed, err := store.Prune(ctx, RetentionPolicy{RetentionDays: 7, TerminalOnly: true})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := store.Load(ctx, "wf-fresh"); err != nil {
		t.Fatalf("expected fresh state to survive prune: %v", err)
	}
	if _, err := store.Load(ctx, "wf-old"); err == nil {
		t.Fatal("expected old state to have been pruned")
	}
}

func TestFileStorePruneSkipsNonTerminal(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	ctx := context.Background()

	running := newTestState("wf-running")
	running.Status = StatusRunning
	running.UpdatedAt = time.Now().AddDate(0, 0, -30)
	if err := store.Save(ctx, running); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := store.Prune(ctx, RetentionPolicy{RetentionDays: 7, TerminalOnly: true})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected a running workflow to survive terminal-only prune, removed=%d", removed)
	}
}
