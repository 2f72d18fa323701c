package statestore

import (
	"context"
	"errors"
	"testing"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

func TestFileLockerExclusive(t *testing.T) {
	dir := t.TempDir()
	locker := NewFileLocker(dir)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "wf-1")
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}

	_, err = locker.Lock(ctx, "wf-1")
	if err == nil {
		t.Fatal("expected second Lock on the same workflow_id to fail")
	}
	if !errors.Is(err, orcerr.Sentinel(orcerr.KindConcurrentModification)) {
		t.Fatalf("expected KindConcurrentModification, got %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	release2, err := locker.Lock(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	release2()
}

func TestFileLockerIndependentWorkflows(t *testing.T) {
	dir := t.TempDir()
	locker := NewFileLocker(dir)
	ctx := context.Background()

	releaseA, err := locker.Lock(ctx, "wf-a")
	if err != nil {
		t.Fatalf("Lock wf-a: %v", err)
	}
	defer releaseA()

	releaseB, err := locker.Lock(ctx, "wf-b")
	if err != nil {
		t.Fatalf("Lock wf-b should not be blocked by wf-a: %v", err)
	}
	defer releaseB()
}
