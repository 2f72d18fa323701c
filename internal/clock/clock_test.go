package clock

import (
	"regexp"
	"testing"
	"time"
)

var workflowIDRe = regexp.MustCompile(`^wf-\d{14}-[0-9a-f]{8}$`)

func TestNewWorkflowIDFormat(t *testing.T) {
	gen := NewIDGenerator(NewFakeClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
	id, err := gen.NewWorkflowID()
	if err != nil {
		t.Fatal(err)
	}
	if !workflowIDRe.MatchString(id) {
		t.Fatalf("id %q does not match expected format", id)
	}
}

func TestNewWorkflowIDUnique(t *testing.T) {
	gen := NewIDGenerator(NewSystemClock())
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := gen.NewWorkflowID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate workflow id %q", id)
		}
		seen[id] = true
	}
}

func TestStepAttemptIDFormat(t *testing.T) {
	got := StepAttemptID("implement", 2, 1)
	want := "implement#2.1"
	if got != want {
		t.Fatalf("StepAttemptID = %q, want %q", got, want)
	}
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	if c.Elapsed() != 0 {
		t.Fatalf("Elapsed() = %v, want 0", c.Elapsed())
	}
	c.Advance(5 * time.Second)
	if c.Elapsed() != 5*time.Second {
		t.Fatalf("Elapsed() = %v, want 5s", c.Elapsed())
	}
	if !c.Now().Equal(start.Add(5 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start.Add(5*time.Second))
	}
}
