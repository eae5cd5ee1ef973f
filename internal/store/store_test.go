package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fentz26/warble/internal/models"
)

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create(newTestRequest(models.TypeSearchTweets))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if rec.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", rec.Status)
	}
	if rec.Result != nil {
		t.Errorf("Expected nil result on a fresh record, got %v", rec.Result)
	}
	if rec.Error != "" {
		t.Errorf("Expected empty error on a fresh record, got %q", rec.Error)
	}
	if rec.StartedAt != nil || rec.CompletedAt != nil {
		t.Error("Fresh record should not carry started/completed timestamps")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
	if got.Request.Type != models.TypeSearchTweets {
		t.Errorf("Expected type %s, got %s", models.TypeSearchTweets, got.Request.Type)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-task")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleCompleted(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create(newTestRequest(models.TypeGetTrends))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	running, err := s.MarkRunning(rec.ID)
	if err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if running.Status != models.TaskStatusRunning {
		t.Errorf("Expected running, got %s", running.Status)
	}
	if running.StartedAt == nil {
		t.Error("Expected started_at to be stamped on running")
	}

	done, err := s.MarkCompleted(rec.ID, map[string]any{"trends": []any{"go1.24"}})
	if err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if done.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", done.Status)
	}
	if done.Result == nil {
		t.Error("Expected result on completed record")
	}
	if done.CompletedAt == nil {
		t.Error("Expected completed_at to be stamped")
	}
	if done.Error != "" {
		t.Errorf("Completed record should not carry an error, got %q", done.Error)
	}
}

func TestLifecycleFailed(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(newTestRequest(models.TypeCreateTweet))
	if _, err := s.MarkRunning(rec.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	failed, err := s.MarkFailed(rec.ID, "rate limited after 3 attempts")
	if err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if failed.Status != models.TaskStatusFailed {
		t.Errorf("Expected failed, got %s", failed.Status)
	}
	if failed.Error == "" {
		t.Error("Expected error message on failed record")
	}
	if failed.Result != nil {
		t.Errorf("Failed record should not carry a result, got %v", failed.Result)
	}
}

func TestCancelPendingAndRunning(t *testing.T) {
	s := newTestStore(t)

	pending, _ := s.Create(newTestRequest(models.TypeLikeTweet))
	got, err := s.MarkCancelled(pending.ID)
	if err != nil {
		t.Fatalf("Cancel of pending task failed: %v", err)
	}
	if got.Status != models.TaskStatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
	if got.Result != nil || got.Error != "" {
		t.Error("Cancelled record should carry neither result nor error")
	}

	running, _ := s.Create(newTestRequest(models.TypeRetweet))
	if _, err := s.MarkRunning(running.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	got, err = s.MarkCancelled(running.ID)
	if err != nil {
		t.Fatalf("Cancel of running task failed: %v", err)
	}
	if got.Status != models.TaskStatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
}

func TestInvalidTransitionsLeaveRecordUnchanged(t *testing.T) {
	s := newTestStore(t)

	cases := []struct {
		name    string
		prepare func(id string)
		mutate  func(id string) error
	}{
		{
			name:    "pending straight to completed",
			prepare: func(string) {},
			mutate: func(id string) error {
				_, err := s.MarkCompleted(id, map[string]any{"ok": true})
				return err
			},
		},
		{
			name:    "pending straight to failed",
			prepare: func(string) {},
			mutate: func(id string) error {
				_, err := s.MarkFailed(id, "boom")
				return err
			},
		},
		{
			name: "completed back to running",
			prepare: func(id string) {
				s.MarkRunning(id)
				s.MarkCompleted(id, map[string]any{})
			},
			mutate: func(id string) error {
				_, err := s.MarkRunning(id)
				return err
			},
		},
		{
			name: "completed to cancelled",
			prepare: func(id string) {
				s.MarkRunning(id)
				s.MarkCompleted(id, map[string]any{})
			},
			mutate: func(id string) error {
				_, err := s.MarkCancelled(id)
				return err
			},
		},
		{
			name: "failed to running",
			prepare: func(id string) {
				s.MarkRunning(id)
				s.MarkFailed(id, "boom")
			},
			mutate: func(id string) error {
				_, err := s.MarkRunning(id)
				return err
			},
		},
		{
			name: "cancelled to running",
			prepare: func(id string) {
				s.MarkCancelled(id)
			},
			mutate: func(id string) error {
				_, err := s.MarkRunning(id)
				return err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := s.Create(newTestRequest(models.TypeSearchTweets))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			tc.prepare(rec.ID)

			before, err := s.Get(rec.ID)
			if err != nil {
				t.Fatalf("Get before mutation failed: %v", err)
			}

			if err := tc.mutate(rec.ID); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Expected ErrInvalidTransition, got %v", err)
			}

			after, err := s.Get(rec.ID)
			if err != nil {
				t.Fatalf("Get after mutation failed: %v", err)
			}
			if after.Status != before.Status {
				t.Errorf("Status changed on rejected transition: %s -> %s", before.Status, after.Status)
			}
			if after.Error != before.Error {
				t.Errorf("Error changed on rejected transition: %q -> %q", before.Error, after.Error)
			}
			if (after.Result == nil) != (before.Result == nil) {
				t.Error("Result changed on rejected transition")
			}
		})
	}
}

func TestResultRequiresCompletedStatus(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(newTestRequest(models.TypeSearchTweets))
	s.MarkRunning(rec.ID)

	_, err := s.Update(rec.ID, Mutation{Result: map[string]any{"sneaky": true}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for result without completion, got %v", err)
	}

	msg := "oops"
	_, err = s.Update(rec.ID, Mutation{Error: &msg})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for error without failure, got %v", err)
	}
}

func TestProgressRequiresRunning(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(newTestRequest(models.TypeMonitorUser))
	if err := s.SetProgress(rec.ID, 50); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for progress on pending task, got %v", err)
	}

	s.MarkRunning(rec.ID)
	if err := s.SetProgress(rec.ID, 50); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	got, _ := s.Get(rec.ID)
	if got.Progress != 50 {
		t.Errorf("Expected progress 50, got %d", got.Progress)
	}

	if err := s.SetProgress(rec.ID, 150); err == nil {
		t.Error("Expected error for out-of-range progress")
	}
	if err := s.SetProgress(rec.ID, -1); err == nil {
		t.Error("Expected error for negative progress")
	}
}

func TestListOrderingAndFilters(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := s.Create(newTestRequest(models.TypeSearchTweets))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	trend, _ := s.Create(newTestRequest(models.TypeGetTrends))
	s.MarkRunning(trend.ID)

	all := s.List(Filter{})
	if len(all) != 6 {
		t.Fatalf("Expected 6 records, got %d", len(all))
	}
	if all[0].ID != trend.ID {
		t.Errorf("Expected newest record first, got %s", all[0].ID)
	}
	if all[len(all)-1].ID != ids[0] {
		t.Errorf("Expected oldest record last, got %s", all[len(all)-1].ID)
	}

	running := s.List(Filter{Status: models.TaskStatusRunning})
	if len(running) != 1 || running[0].ID != trend.ID {
		t.Errorf("Status filter returned wrong records: %+v", running)
	}

	byType := s.List(Filter{Type: models.TypeSearchTweets})
	if len(byType) != 5 {
		t.Errorf("Expected 5 search_tweets records, got %d", len(byType))
	}

	limited := s.List(Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("Expected limit to cap results at 2, got %d", len(limited))
	}
}

func TestListByScheduleID(t *testing.T) {
	s := newTestStore(t)

	req := newTestRequest(models.TypeRunWorkflow)
	first, _ := s.CreateForSchedule(req, "sched-1")
	s.CreateForSchedule(req, "sched-2")
	s.Create(req)

	got := s.List(Filter{ScheduleID: "sched-1"})
	if len(got) != 1 {
		t.Fatalf("Expected 1 record for sched-1, got %d", len(got))
	}
	if got[0].ID != first.ID {
		t.Errorf("Expected %s, got %s", first.ID, got[0].ID)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(newTestRequest(models.TypeSearchTweets))
	if err := s.Delete(rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestCountByStatusAndLen(t *testing.T) {
	s := newTestStore(t)

	if s.Len() != 0 {
		t.Fatalf("Expected empty store, got %d records", s.Len())
	}
	if s.LastActivity() != nil {
		t.Error("Expected nil last activity for fresh store")
	}

	a, _ := s.Create(newTestRequest(models.TypeSearchTweets))
	b, _ := s.Create(newTestRequest(models.TypeSearchTweets))
	s.Create(newTestRequest(models.TypeSearchTweets))
	s.MarkRunning(a.ID)
	s.MarkRunning(b.ID)
	s.MarkCompleted(b.ID, map[string]any{})

	counts := s.CountByStatus()
	if counts[models.TaskStatusPending] != 1 {
		t.Errorf("Expected 1 pending, got %d", counts[models.TaskStatusPending])
	}
	if counts[models.TaskStatusRunning] != 1 {
		t.Errorf("Expected 1 running, got %d", counts[models.TaskStatusRunning])
	}
	if counts[models.TaskStatusCompleted] != 1 {
		t.Errorf("Expected 1 completed, got %d", counts[models.TaskStatusCompleted])
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 records, got %d", s.Len())
	}
	if s.LastActivity() == nil {
		t.Error("Expected last activity after mutations")
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(models.TaskRequest{
		Type:       models.TypeSearchTweets,
		Parameters: map[string]any{"query": "original"},
	})

	// Mutating what Create handed back must not leak into the store.
	rec.Request.Parameters["query"] = "tampered"
	rec.Status = models.TaskStatusCompleted

	got, _ := s.Get(rec.ID)
	if got.Request.Parameters["query"] != "original" {
		t.Errorf("Store leaked caller mutation: %v", got.Request.Parameters["query"])
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("Store leaked status mutation: %s", got.Status)
	}

	got.Request.Parameters["query"] = "tampered again"
	again, _ := s.Get(rec.ID)
	if again.Request.Parameters["query"] != "original" {
		t.Errorf("Store leaked Get-side mutation: %v", again.Request.Parameters["query"])
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newTestStore(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec, err := s.Create(newTestRequest(models.TypeSearchTweets))
				if err != nil {
					t.Errorf("Worker %d: Create failed: %v", w, err)
					return
				}
				if _, err := s.MarkRunning(rec.ID); err != nil {
					t.Errorf("Worker %d: MarkRunning failed: %v", w, err)
					return
				}
				if i%2 == 0 {
					_, err = s.MarkCompleted(rec.ID, map[string]any{"i": i})
				} else {
					_, err = s.MarkFailed(rec.ID, fmt.Sprintf("worker %d failure", w))
				}
				if err != nil {
					t.Errorf("Worker %d: terminal transition failed: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != workers*perWorker {
		t.Fatalf("Expected %d records, got %d", workers*perWorker, s.Len())
	}
	counts := s.CountByStatus()
	total := counts[models.TaskStatusCompleted] + counts[models.TaskStatusFailed]
	if total != workers*perWorker {
		t.Errorf("Expected every record terminal, got %v", counts)
	}
}

func TestRacingTerminalTransitions(t *testing.T) {
	s := newTestStore(t)

	rec, _ := s.Create(newTestRequest(models.TypeSearchTweets))
	s.MarkRunning(rec.ID)

	// Exactly one of the racing terminal transitions wins; the rest must be
	// rejected without corrupting the record.
	var wg sync.WaitGroup
	results := make(chan error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, err := s.MarkCompleted(rec.ID, map[string]any{})
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := s.MarkFailed(rec.ID, "race")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := s.MarkCancelled(rec.ID)
		results <- err
	}()
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		if err == nil {
			successes++
		} else if errors.Is(err, ErrInvalidTransition) {
			rejections++
		} else {
			t.Errorf("Unexpected error from racing transition: %v", err)
		}
	}
	if successes != 1 || rejections != 2 {
		t.Errorf("Expected exactly one winner, got %d successes and %d rejections", successes, rejections)
	}

	got, _ := s.Get(rec.ID)
	if !got.Status.Terminal() {
		t.Errorf("Expected terminal status after race, got %s", got.Status)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New()
}

func newTestRequest(taskType models.TaskType) models.TaskRequest {
	return models.TaskRequest{
		Type: taskType,
		Parameters: map[string]any{
			"query": "golang",
		},
		Priority: models.PriorityMedium,
	}
}
