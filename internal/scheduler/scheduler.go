package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/metrics"
	"github.com/fentz26/warble/internal/models"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/workflow"
)

// ErrNotFound marks lookups of unknown schedule IDs.
var ErrNotFound = errors.New("schedule not found")

// ErrInvalidConfig marks schedule configurations that can never fire.
var ErrInvalidConfig = errors.New("invalid schedule configuration")

// Dispatcher hands created task records to the execution engine.
type Dispatcher interface {
	Dispatch(taskID string)
}

// entry pairs a schedule with its parsed cron cadence. cron is nil for
// interval schedules.
type entry struct {
	run  *models.ScheduledWorkflowRun
	cron cron.Schedule
}

// Scheduler owns the scheduled workflow runs and the tick loop that fires
// them.
type Scheduler struct {
	store      *store.Store
	registry   *workflow.Registry
	dispatcher Dispatcher
	metrics    *metrics.Collector
	config     *Config
	logger     *zap.Logger

	mu        sync.Mutex
	schedules map[string]*entry
	order     []string

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. cfg may be nil for defaults; metrics may be nil.
func New(s *store.Store, reg *workflow.Registry, d Dispatcher, m *metrics.Collector, cfg *Config, logger *zap.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		store:      s,
		registry:   reg,
		dispatcher: d,
		metrics:    m,
		config:     cfg,
		logger:     logger,
		schedules:  make(map[string]*entry),
	}
}

// Start begins the scheduler loop. Starting a running scheduler is a no-op.
func (sch *Scheduler) Start() {
	sch.runMu.Lock()
	defer sch.runMu.Unlock()

	if sch.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sch.cancel = cancel
	sch.wg.Add(1)
	go sch.loop(ctx)
	sch.logger.Info("scheduler started",
		zap.Duration("tick_interval", sch.config.GetTickInterval()))
}

// Stop halts the loop and waits for it to exit. Registered schedules survive
// a stop, so a later Start resumes them. Stopping a stopped scheduler is a
// no-op.
func (sch *Scheduler) Stop() {
	sch.runMu.Lock()
	cancel := sch.cancel
	sch.cancel = nil
	sch.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

func (sch *Scheduler) loop(ctx context.Context) {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.tick(time.Now().UTC())
		}
	}
}

// Schedule registers a workflow to run on the given cadence. The workflow
// must exist and exactly one of interval or cron must be set.
func (sch *Scheduler) Schedule(workflowName string, params map[string]any, cfg models.ScheduleConfig) (*models.ScheduledWorkflowRun, error) {
	if _, ok := sch.registry.Get(workflowName); !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrNotFound, workflowName)
	}

	hasInterval := cfg.IntervalSeconds > 0
	hasCron := strings.TrimSpace(cfg.CronExpression) != ""
	switch {
	case cfg.IntervalSeconds < 0:
		return nil, fmt.Errorf("%w: interval_seconds must be positive", ErrInvalidConfig)
	case cfg.MaxRuns < 0:
		return nil, fmt.Errorf("%w: max_runs must not be negative", ErrInvalidConfig)
	case hasInterval == hasCron:
		return nil, fmt.Errorf("%w: exactly one of interval_seconds or cron_expression must be set", ErrInvalidConfig)
	}

	now := time.Now().UTC()
	e := &entry{}
	if hasCron {
		parsed, err := cron.ParseStandard(cfg.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing cron expression: %v", ErrInvalidConfig, err)
		}
		e.cron = parsed
	}

	run := &models.ScheduledWorkflowRun{
		ScheduleID:   uuid.New().String(),
		WorkflowName: workflowName,
		Parameters:   cloneParams(params),
		Schedule:     cfg,
		NextRunAt:    nextRun(e.cron, cfg, now),
		Status:       models.ScheduleActive,
		CreatedAt:    now,
	}
	e.run = run

	sch.mu.Lock()
	sch.schedules[run.ScheduleID] = e
	sch.order = append(sch.order, run.ScheduleID)
	sch.publishActiveCount()
	sch.mu.Unlock()

	sch.logger.Info("workflow scheduled",
		zap.String("schedule_id", run.ScheduleID),
		zap.String("workflow", workflowName),
		zap.Time("next_run_at", run.NextRunAt))
	return cloneRun(run), nil
}

// Cancel deactivates a schedule. Cancelling an already inactive or errored
// schedule succeeds without change.
func (sch *Scheduler) Cancel(scheduleID string) (*models.ScheduledWorkflowRun, error) {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	e, ok := sch.schedules[scheduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, scheduleID)
	}
	if e.run.Status == models.ScheduleActive {
		e.run.Status = models.ScheduleInactive
		sch.publishActiveCount()
		sch.logger.Info("schedule cancelled", zap.String("schedule_id", scheduleID))
	}
	return cloneRun(e.run), nil
}

// Get returns one schedule by ID.
func (sch *Scheduler) Get(scheduleID string) (*models.ScheduledWorkflowRun, error) {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	e, ok := sch.schedules[scheduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, scheduleID)
	}
	return cloneRun(e.run), nil
}

// List returns every schedule in creation order.
func (sch *Scheduler) List() []*models.ScheduledWorkflowRun {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	out := make([]*models.ScheduledWorkflowRun, 0, len(sch.order))
	for _, id := range sch.order {
		out = append(out, cloneRun(sch.schedules[id].run))
	}
	return out
}

// ListActive returns the schedules still eligible to fire, in creation order.
func (sch *Scheduler) ListActive() []*models.ScheduledWorkflowRun {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	out := make([]*models.ScheduledWorkflowRun, 0, len(sch.order))
	for _, id := range sch.order {
		if sch.schedules[id].run.Status == models.ScheduleActive {
			out = append(out, cloneRun(sch.schedules[id].run))
		}
	}
	return out
}

// tick fires every active schedule whose NextRunAt has passed. Each due
// schedule fires at most once per tick: the next run is computed from now,
// so missed ticks collapse into a single catch-up fire.
func (sch *Scheduler) tick(now time.Time) {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	for _, id := range sch.order {
		e := sch.schedules[id]
		run := e.run
		if run.Status != models.ScheduleActive || run.NextRunAt.After(now) {
			continue
		}

		if _, ok := sch.registry.Get(run.WorkflowName); !ok {
			run.Status = models.ScheduleError
			sch.logger.Error("scheduled workflow no longer registered",
				zap.String("schedule_id", run.ScheduleID),
				zap.String("workflow", run.WorkflowName))
			continue
		}

		rec, err := sch.store.CreateForSchedule(models.TaskRequest{
			Type: models.TypeRunWorkflow,
			Parameters: map[string]any{
				"workflow_name": run.WorkflowName,
				"parameters":    cloneParams(run.Parameters),
			},
		}, run.ScheduleID)
		if err != nil {
			sch.logger.Error("creating scheduled task failed",
				zap.String("schedule_id", run.ScheduleID),
				zap.Error(err))
			continue
		}
		sch.dispatcher.Dispatch(rec.ID)

		fired := now
		run.RunCount++
		run.LastRunAt = &fired
		run.NextRunAt = nextRun(e.cron, run.Schedule, now)

		if run.Schedule.MaxRuns > 0 && run.RunCount >= run.Schedule.MaxRuns {
			run.Status = models.ScheduleInactive
			sch.logger.Info("schedule reached max runs",
				zap.String("schedule_id", run.ScheduleID),
				zap.Int("run_count", run.RunCount))
		}

		sch.logger.Info("schedule fired",
			zap.String("schedule_id", run.ScheduleID),
			zap.String("workflow", run.WorkflowName),
			zap.String("task_id", rec.ID),
			zap.Int("run_count", run.RunCount),
			zap.Time("next_run_at", run.NextRunAt))
	}
	sch.publishActiveCount()
}

// publishActiveCount pushes the active-schedule count to the gauge. Callers
// hold sch.mu.
func (sch *Scheduler) publishActiveCount() {
	n := 0
	for _, e := range sch.schedules {
		if e.run.Status == models.ScheduleActive {
			n++
		}
	}
	sch.metrics.SetSchedulesActive(n)
}

// nextRun computes the next fire time from now, never from the previous
// NextRunAt.
func nextRun(cronSched cron.Schedule, cfg models.ScheduleConfig, now time.Time) time.Time {
	if cronSched != nil {
		return cronSched.Next(now)
	}
	return now.Add(time.Duration(cfg.IntervalSeconds) * time.Second)
}

func cloneRun(run *models.ScheduledWorkflowRun) *models.ScheduledWorkflowRun {
	c := *run
	c.Parameters = cloneParams(run.Parameters)
	if run.LastRunAt != nil {
		at := *run.LastRunAt
		c.LastRunAt = &at
	}
	return &c
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneParams(val)
		case []any:
			items := make([]any, len(val))
			copy(items, val)
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
