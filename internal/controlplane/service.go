// Package controlplane exposes the agent over HTTP: task intake, workflow
// execution and scheduling, agent lifecycle, and the Twitter convenience
// endpoints. The Service holds the business rules; the Server maps them onto
// routes and status codes.
package controlplane

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/warble/internal/executor"
	"github.com/fentz26/warble/internal/models"
	"github.com/fentz26/warble/internal/planner"
	"github.com/fentz26/warble/internal/scheduler"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/workflow"
)

// Deps carries the collaborators a Service orchestrates.
type Deps struct {
	Store     *store.Store
	Registry  *workflow.Registry
	Scheduler *scheduler.Scheduler
	Executor  *executor.Executor
	Planner   *planner.Planner

	// Version is reported by the health endpoint.
	Version string
	// DefaultScheduleInterval, in seconds, seeds schedule requests that name
	// no cadence of their own.
	DefaultScheduleInterval int
}

// Service implements the control plane operations on top of the store,
// registry, scheduler, executor and planner.
type Service struct {
	store     *store.Store
	registry  *workflow.Registry
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	planner   *planner.Planner

	version         string
	defaultInterval int

	mu      sync.Mutex
	running bool
}

// NewService creates a control plane service. The agent starts stopped; call
// StartAgent before accepting work.
func NewService(d Deps) *Service {
	interval := d.DefaultScheduleInterval
	if interval <= 0 {
		interval = 3600
	}
	return &Service{
		store:           d.Store,
		registry:        d.Registry,
		scheduler:       d.Scheduler,
		executor:        d.Executor,
		planner:         d.Planner,
		version:         d.Version,
		defaultInterval: interval,
	}
}

// Version returns the daemon version string.
func (s *Service) Version() string { return s.version }

// TaskCount returns the number of records currently in the store.
func (s *Service) TaskCount() int { return s.store.Len() }

// --- Agent Operations ---

// StartAgent begins accepting work and starts the scheduler loop. Starting an
// already running agent is a no-op.
func (s *Service) StartAgent() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = true
	s.mu.Unlock()

	if !wasRunning {
		s.scheduler.Start()
	}
}

// StopAgent stops the scheduler loop and rejects further mutating intake.
// Tasks already running drain on their own, and reads stay available.
func (s *Service) StopAgent() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.scheduler.Stop()
	}
}

// AgentRunning reports whether the agent currently accepts work.
func (s *Service) AgentRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) requireRunning() error {
	if !s.AgentRunning() {
		return ErrAgentStopped
	}
	return nil
}

// Status summarizes the agent: live and completed task counts, active
// schedules, and the most recent store activity.
func (s *Service) Status() models.AgentStatus {
	counts := s.store.CountByStatus()

	state := "stopped"
	if s.AgentRunning() {
		state = "running"
	}

	return models.AgentStatus{
		ActiveTasks:        counts[models.TaskStatusPending] + counts[models.TaskStatusRunning],
		CompletedTasks:     counts[models.TaskStatusCompleted],
		ScheduledWorkflows: len(s.scheduler.ListActive()),
		LastActivity:       s.store.LastActivity(),
		Status:             state,
	}
}

// --- Task Operations ---

// CreateTask validates the request, stores a pending record and dispatches it
// to the executor without waiting for the outcome.
func (s *Service) CreateTask(req models.TaskRequest) (*models.TaskRecord, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidRequest)
	}
	if !models.ValidTaskType(req.Type) {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, req.Type)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(req.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}

	rec, err := s.store.Create(req)
	if err != nil {
		return nil, err
	}
	s.executor.Dispatch(rec.ID)
	return rec, nil
}

// ProcessText derives a task from free text and executes it synchronously,
// returning the finished record.
func (s *Service) ProcessText(ctx context.Context, text string) (*models.TaskRecord, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}

	req, err := s.planner.Plan(ctx, text)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Create(*req)
	if err != nil {
		return nil, err
	}
	return s.executor.ExecuteSync(ctx, rec.ID)
}

// GetTask returns a single task record.
func (s *Service) GetTask(id string) (*models.TaskRecord, error) {
	return s.store.Get(id)
}

// ListTasks returns records matching the filters, most recent first. With an
// explicit status the filter is applied directly; without one the listing
// carries every active record plus at most limit terminal ones (default 20).
func (s *Service) ListTasks(status, taskType string, limit int) []*models.TaskRecord {
	if status != "" {
		return s.store.List(store.Filter{
			Status: models.TaskStatus(status),
			Type:   models.TaskType(taskType),
			Limit:  limit,
		})
	}

	if limit <= 0 {
		limit = 20
	}

	out := []*models.TaskRecord{}
	terminal := 0
	for _, rec := range s.store.List(store.Filter{Type: models.TaskType(taskType)}) {
		if rec.Status.Terminal() {
			if terminal >= limit {
				continue
			}
			terminal++
		}
		out = append(out, rec)
	}
	return out
}

// DeleteTask doubles as cancel and cleanup. Pending records are cancelled
// outright. Running records get a cancellation signal and move to cancelled at
// the task's next checkpoint; the record is returned as it stands. Terminal
// records are removed from the store.
func (s *Service) DeleteTask(id string) (*models.TaskRecord, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case models.TaskStatusPending:
		return s.store.MarkCancelled(id)
	case models.TaskStatusRunning:
		s.executor.Cancel(id)
		return rec, nil
	default:
		if err := s.store.Delete(id); err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// --- Workflow Operations ---

// WorkflowInfo is a registered definition together with its live scheduling
// state.
type WorkflowInfo struct {
	models.WorkflowDefinition
	ActiveSchedules int        `json:"active_schedules"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

// ListWorkflows returns every registered definition with the number of active
// schedules pointing at it and the most recent time any of them fired.
func (s *Service) ListWorkflows() []WorkflowInfo {
	runs := s.scheduler.List()
	defs := s.registry.List()

	out := make([]WorkflowInfo, 0, len(defs))
	for _, def := range defs {
		info := WorkflowInfo{WorkflowDefinition: def}
		for _, run := range runs {
			if run.WorkflowName != def.Name {
				continue
			}
			if run.Status == models.ScheduleActive {
				info.ActiveSchedules++
			}
			if run.LastRunAt != nil && (info.LastRunAt == nil || run.LastRunAt.After(*info.LastRunAt)) {
				info.LastRunAt = run.LastRunAt
			}
		}
		out = append(out, info)
	}
	return out
}

// ExecuteWorkflow runs a registered workflow synchronously as a run_workflow
// task and returns the finished record.
func (s *Service) ExecuteWorkflow(ctx context.Context, name string, params map[string]any) (*models.TaskRecord, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Get(name); !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrNotFound, name)
	}

	rec, err := s.store.Create(models.TaskRequest{
		Type:     models.TypeRunWorkflow,
		Priority: models.PriorityMedium,
		Parameters: map[string]any{
			"workflow_name": name,
			"parameters":    params,
		},
	})
	if err != nil {
		return nil, err
	}
	return s.executor.ExecuteSync(ctx, rec.ID)
}

// ScheduleWorkflow registers a recurring run for a workflow. Requests that
// name neither an interval nor a cron expression get the configured default
// interval.
func (s *Service) ScheduleWorkflow(name string, params map[string]any, cfg models.ScheduleConfig) (*models.ScheduledWorkflowRun, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}
	if cfg.IntervalSeconds == 0 && strings.TrimSpace(cfg.CronExpression) == "" {
		cfg.IntervalSeconds = s.defaultInterval
	}
	return s.scheduler.Schedule(name, params, cfg)
}

// ListSchedules returns schedules in creation order, optionally filtered by
// status.
func (s *Service) ListSchedules(status string) []*models.ScheduledWorkflowRun {
	runs := s.scheduler.List()
	if status == "" {
		return runs
	}

	out := make([]*models.ScheduledWorkflowRun, 0, len(runs))
	for _, run := range runs {
		if string(run.Status) == status {
			out = append(out, run)
		}
	}
	return out
}

// CancelSchedule deactivates a schedule and returns its final state.
func (s *Service) CancelSchedule(id string) (*models.ScheduledWorkflowRun, error) {
	return s.scheduler.Cancel(id)
}

// --- Twitter Operations ---

// SearchTweets runs a synchronous search task.
func (s *Service) SearchTweets(ctx context.Context, query string, maxResults int) (*models.TaskRecord, error) {
	params := map[string]any{"query": query}
	if maxResults > 0 {
		params["max_results"] = maxResults
	}
	return s.runSync(ctx, models.TypeSearchTweets, params)
}

// AnalyzeTrends runs the trend_monitor workflow for a location synchronously.
func (s *Service) AnalyzeTrends(ctx context.Context, location string) (*models.TaskRecord, error) {
	return s.ExecuteWorkflow(ctx, "trend_monitor", map[string]any{"woeid": woeidFor(location)})
}

// MonitorUser runs a synchronous activity check for one account.
func (s *Service) MonitorUser(ctx context.Context, username string) (*models.TaskRecord, error) {
	return s.runSync(ctx, models.TypeMonitorUser, map[string]any{"username": username})
}

// CreatePost publishes a tweet synchronously.
func (s *Service) CreatePost(ctx context.Context, content string) (*models.TaskRecord, error) {
	return s.runSync(ctx, models.TypeCreateTweet, map[string]any{"text": content})
}

func (s *Service) runSync(ctx context.Context, t models.TaskType, params map[string]any) (*models.TaskRecord, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}

	rec, err := s.store.Create(models.TaskRequest{
		Type:       t,
		Parameters: params,
		Priority:   models.PriorityMedium,
	})
	if err != nil {
		return nil, err
	}
	return s.executor.ExecuteSync(ctx, rec.ID)
}

// woeidFor maps a human location name to its WOEID, defaulting to worldwide.
func woeidFor(location string) int {
	switch strings.ToLower(strings.TrimSpace(location)) {
	case "", "worldwide", "global", "world":
		return 1
	case "united states", "usa", "us":
		return 23424977
	case "united kingdom", "uk":
		return 23424975
	case "japan":
		return 23424856
	case "canada":
		return 23424775
	case "germany":
		return 23424829
	case "france":
		return 23424819
	case "brazil":
		return 23424768
	case "india":
		return 23424848
	case "australia":
		return 23424748
	default:
		return 1
	}
}
