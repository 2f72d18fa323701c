package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)

	a, err := reg.Write("wf-1", "a", 0, "spec_out", []byte("hello"), false)
	if err != nil {
		t.Fatal(err)
	}
	if a.SizeBytes != 5 {
		t.Fatalf("SizeBytes = %d, want 5", a.SizeBytes)
	}

	data, err := reg.Read(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("Read = %q, want hello", data)
	}
}

func TestWriteRejectsDuplicateWithoutOverwrite(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)

	if _, err := reg.Write("wf-1", "a", 0, "out", []byte("v1"), false); err != nil {
		t.Fatal(err)
	}
	_, err := reg.Write("wf-1", "a", 0, "out", []byte("v2"), false)
	if err == nil {
		t.Fatal("expected duplicate write to fail")
	}

	if _, err := reg.Write("wf-1", "a", 0, "out", []byte("v2"), true); err != nil {
		t.Fatalf("overwrite=true should succeed: %v", err)
	}
}

func TestWritePathViolation(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)
	reg.StepOutputsDir = "../outside"

	_, err := reg.Write("wf-1", "a", 0, "out", []byte("x"), false)
	var oe *orcerr.Error
	if err == nil {
		t.Fatal("expected path violation")
	}
	if !orcerrAs(err, &oe) || oe.Kind != orcerr.KindPathViolation {
		t.Fatalf("expected path_violation, got %v", err)
	}
}

func TestReadDigestMismatch(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)

	a, err := reg.Write("wf-1", "a", 0, "out", []byte("original"), false)
	if err != nil {
		t.Fatal(err)
	}

	full := filepath.Join(root, a.Path)
	if err := os.WriteFile(full, []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = reg.Read(a)
	var oe *orcerr.Error
	if !orcerrAs(err, &oe) || oe.Kind != orcerr.KindDigestMismatch {
		t.Fatalf("expected digest_mismatch, got %v", err)
	}
}

func TestReadNotFound(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)
	a := &Artifact{Path: "does/not/exist"}
	_, err := reg.Read(a)
	var oe *orcerr.Error
	if !orcerrAs(err, &oe) || oe.Kind != orcerr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestShadowIteration(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, ".orc/artifacts", nil)
	if _, err := reg.Write("wf-1", "implement", 0, "code_out", []byte("v0"), false); err != nil {
		t.Fatal(err)
	}
	if err := reg.ShadowIteration("wf-1", "implement", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(reg.stepDir("wf-1", "implement", 0)); !os.IsNotExist(err) {
		t.Fatalf("expected original iteration dir to be renamed away")
	}
	if _, err := os.Stat(reg.stepDir("wf-1", "implement", 0) + ".loopback"); err != nil {
		t.Fatalf("expected shadow dir to exist: %v", err)
	}
}

func orcerrAs(err error, target **orcerr.Error) bool {
	return errors.As(err, target)
}
