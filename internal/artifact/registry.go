// Package artifact implements the Artifact Registry (C2): content-addressed,
// allowlist-enforced, atomically-written step outputs.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// Artifact describes one produced file, addressed by
// (workflow_id, step_id, logical_name, iteration).
type Artifact struct {
	WorkflowID    string
	StepID        string
	LogicalName   string
	Iteration     int
	Path          string // relative to ProjectRoot
	ContentDigest string // hex sha256
	SizeBytes     int64
	CreatedAt     time.Time
}

// Registry maps (workflow_id, step_id, logical_name, iteration) to files on
// disk under <project_root>/<step_outputs_dir>/<workflow_id>/<step_id>/<iteration>/<logical_name>,
// enforcing a path allowlist and atomic-write guarantees.
type Registry struct {
	ProjectRoot    string
	StepOutputsDir string // relative to ProjectRoot, e.g. ".orc/artifacts"
	AllowRoots     []string

	clock func() time.Time
}

// NewRegistry builds a Registry rooted at projectRoot. allowRoots additional
// to projectRoot may be supplied by the caller's policy.
func NewRegistry(projectRoot, stepOutputsDir string, allowRoots []string) *Registry {
	return &Registry{
		ProjectRoot:    projectRoot,
		StepOutputsDir: stepOutputsDir,
		AllowRoots:     allowRoots,
		clock:          time.Now,
	}
}

func (r *Registry) stepDir(workflowID, stepID string, iteration int) string {
	return filepath.Join(r.ProjectRoot, r.StepOutputsDir, workflowID, stepID, strconv.Itoa(iteration))
}

func (r *Registry) relPath(workflowID, stepID string, iteration int, logicalName string) string {
	return filepath.Join(r.StepOutputsDir, workflowID, stepID, strconv.Itoa(iteration), logicalName)
}

// allowedRoots returns the absolute paths writes must fall within: the
// project root and any caller-configured extras.
func (r *Registry) allowedRoots() []string {
	roots := []string{r.ProjectRoot}
	for _, extra := range r.AllowRoots {
		if filepath.IsAbs(extra) {
			roots = append(roots, extra)
		} else {
			roots = append(roots, filepath.Join(r.ProjectRoot, extra))
		}
	}
	return roots
}

func withinAllowlist(path string, roots []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err == nil && rel != ".." && !hasDotDotPrefix(rel) {
			return true
		}
	}
	return false
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".." && (len(rel) == 2 || rel[2] == filepath.Separator)
}

// Write atomically writes data as (workflowID, stepID, logicalName,
// iteration) and returns the recorded Artifact. overwrite must be true to
// replace an artifact that already exists on disk for that key (the
// executor sets it when a step re-runs within the same iteration, as on a
// retry; a loopback bumps the iteration and so writes to a fresh path).
func (r *Registry) Write(workflowID, stepID string, iteration int, logicalName string, data []byte, overwrite bool) (*Artifact, error) {
	dir := r.stepDir(workflowID, stepID, iteration)
	finalPath := filepath.Join(dir, logicalName)

	if !withinAllowlist(finalPath, r.allowedRoots()) {
		return nil, orcerr.New(orcerr.KindPathViolation,
			fmt.Sprintf("artifact path %q falls outside the allowlist", finalPath))
	}

	if !overwrite {
		if _, err := os.Stat(finalPath); err == nil {
			return nil, orcerr.New(orcerr.KindPathViolation,
				fmt.Sprintf("artifact %s/%s already exists for workflow %s iteration %d", stepID, logicalName, workflowID, iteration))
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "creating artifact directory", err)
	}

	tmp := finalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "writing artifact temp file", err)
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		os.Remove(tmp)
		return nil, orcerr.Wrap(orcerr.KindInternal, "renaming artifact into place", err)
	}

	sum := sha256.Sum256(data)
	a := &Artifact{
		WorkflowID:    workflowID,
		StepID:        stepID,
		LogicalName:   logicalName,
		Iteration:     iteration,
		Path:          r.relPath(workflowID, stepID, iteration, logicalName),
		ContentDigest: hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(data)),
		CreatedAt:     r.now(),
	}
	return a, nil
}

// Read returns the bytes backing a, verifying its recorded digest.
func (r *Registry) Read(a *Artifact) ([]byte, error) {
	full := filepath.Join(r.ProjectRoot, a.Path)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcerr.Wrap(orcerr.KindNotFound, fmt.Sprintf("artifact %s not found", a.Path), err)
		}
		return nil, orcerr.Wrap(orcerr.KindInternal, "reading artifact", err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != a.ContentDigest {
		return nil, orcerr.New(orcerr.KindDigestMismatch,
			fmt.Sprintf("artifact %s on-disk content no longer matches recorded digest", a.Path))
	}
	return data, nil
}

// ShadowIteration renames a reset step's on-disk outputs from their current
// iteration into the loopback suffix, so they remain on disk for
// debuggability without being visible as "current".
func (r *Registry) ShadowIteration(workflowID, stepID string, fromIteration int) error {
	dir := r.stepDir(workflowID, stepID, fromIteration)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	shadowDir := dir + ".loopback"
	return os.Rename(dir, shadowDir)
}

func (r *Registry) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}
