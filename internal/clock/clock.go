// Package clock issues workflow and step-attempt correlation identifiers and
// provides injectable wall/monotonic clocks so the executor's timing logic
// is deterministically testable.
package clock

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall time and monotonic elapsed time.
type Clock interface {
	Now() time.Time
	Elapsed() time.Duration
}

// SystemClock is the production Clock backed by the real wall clock and a
// monotonic start point captured at construction.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock whose Elapsed() is measured from now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) Elapsed() time.Duration { return time.Since(c.start) }

// FakeClock lets tests control both Now() and Elapsed() deterministically.
type FakeClock struct {
	current time.Time
	elapsed time.Duration
}

// NewFakeClock returns a FakeClock pinned to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

func (c *FakeClock) Now() time.Time { return c.current }

func (c *FakeClock) Elapsed() time.Duration { return c.elapsed }

// Advance moves both Now() and Elapsed() forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
	c.elapsed += d
}

// IDGenerator issues workflow and step-attempt IDs. It is safe for
// concurrent use; the only shared state is the injected Clock.
type IDGenerator struct {
	clock Clock
}

// NewIDGenerator builds an IDGenerator backed by clk.
func NewIDGenerator(clk Clock) *IDGenerator {
	return &IDGenerator{clock: clk}
}

// NewWorkflowID issues "wf-YYYYMMDDHHMMSS-<8-hex>", taking its random
// suffix from the leading bytes of a uuid.New().
func (g *IDGenerator) NewWorkflowID() (string, error) {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("wf-%s-%s", g.clock.Now().UTC().Format("20060102150405"), suffix), nil
}

// NewCorrelationID issues a bare uuid to tag a run for cross-system tracing
// when the caller doesn't supply its own.
func (g *IDGenerator) NewCorrelationID() string {
	return uuid.New().String()
}

// StepAttemptID formats "<step_id>#<iteration>.<attempt>".
func StepAttemptID(stepID string, iteration, attempt int) string {
	return fmt.Sprintf("%s#%d.%d", stepID, iteration, attempt)
}
