package scheduler

import (
	"testing"
	"time"

	"github.com/fentz26/warble/internal/models"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/workflow"
)

// Test10ParallelSchedules verifies that many due schedules fire exactly once
// each under the live loop, with no double-fires across ticks.
func Test10ParallelSchedules(t *testing.T) {
	s := store.New()
	reg := workflow.NewRegistry()
	err := reg.Register(models.WorkflowDefinition{
		Name: "wf",
		Type: models.WorkflowRecurring,
		Steps: []models.WorkflowStep{
			{Name: "trends", Type: models.TypeGetTrends, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	d := &recordingDispatcher{}
	cfg := &Config{TickInterval: 10 * time.Millisecond}
	sch := New(s, reg, d, nil, cfg, nil)

	// Ten single-shot schedules, all due after one second.
	numSchedules := 10
	scheduleIDs := make([]string, numSchedules)
	for i := 0; i < numSchedules; i++ {
		run, err := sch.Schedule("wf", nil, models.ScheduleConfig{IntervalSeconds: 1, MaxRuns: 1})
		if err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
		scheduleIDs[i] = run.ScheduleID
	}

	sch.Start()
	defer sch.Stop()

	// Poll until every schedule has fired or timeout.
	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Timeout waiting for schedules to fire, got %d", d.count())
		case <-ticker.C:
			if d.count() >= numSchedules {
				goto allFired
			}
		}
	}
allFired:
	// Let the loop keep ticking; a buggy scheduler would fire again.
	time.Sleep(200 * time.Millisecond)

	if d.count() != numSchedules {
		t.Errorf("Expected exactly %d dispatches, got %d", numSchedules, d.count())
	}

	// Every schedule fired exactly once and is now inactive.
	for _, id := range scheduleIDs {
		run, err := sch.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if run.RunCount != 1 {
			t.Errorf("Schedule %s fired %d times", id, run.RunCount)
		}
		if run.Status != models.ScheduleInactive {
			t.Errorf("Schedule %s status %s, want inactive", id, run.Status)
		}

		recs := s.List(store.Filter{ScheduleID: id})
		if len(recs) != 1 {
			t.Errorf("Expected 1 record for schedule %s, got %d", id, len(recs))
		}
	}
}
