package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/metrics"
	"github.com/fentz26/warble/internal/models"
	"github.com/fentz26/warble/internal/planner"
	"github.com/fentz26/warble/internal/scheduler"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/workflow"
)

// Server provides the HTTP API for the agent daemon.
type Server struct {
	service *Service
	metrics *metrics.Collector
	logger  *zap.Logger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server. The collector may be nil; /metrics
// then serves an empty exposition.
func NewServer(service *Service, m *metrics.Collector, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		metrics: m,
		logger:  logger,
		addr:    addr,
	}
}

// Handler builds the full route table wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	// Agent endpoints
	mux.HandleFunc("/api/agent/status", s.handleAgentStatus)
	mux.HandleFunc("/api/agent/start", s.handleAgentStart)
	mux.HandleFunc("/api/agent/stop", s.handleAgentStop)
	mux.HandleFunc("/api/agent/process", s.handleProcess)

	// Task endpoints
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)

	// Workflow endpoints
	mux.HandleFunc("/api/workflows", s.handleWorkflows)
	mux.HandleFunc("/api/workflows/execute", s.handleWorkflowExecute)
	mux.HandleFunc("/api/workflows/schedule", s.handleWorkflowSchedule)
	mux.HandleFunc("/api/workflows/schedules", s.handleWorkflowSchedules)
	mux.HandleFunc("/api/workflows/cancel/", s.handleWorkflowCancel)
	mux.HandleFunc("/api/workflows/status/", s.handleWorkflowStatus)

	// Twitter endpoints
	mux.HandleFunc("/api/twitter/search", s.handleTwitterSearch)
	mux.HandleFunc("/api/twitter/analyze-trends", s.handleTwitterTrends)
	mux.HandleFunc("/api/twitter/monitor-user", s.handleTwitterMonitor)
	mux.HandleFunc("/api/twitter/create-post", s.handleTwitterPost)

	return s.instrument(mux)
}

// Start starts the HTTP server and blocks until it shuts down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Synchronous runs hold the response open until the task finishes,
		// bounded by the executor watchdog, so no write timeout here.
		WriteTimeout: 0,
	}

	s.logger.Info("control plane listening", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps the mux with panic recovery, request metrics and debug
// request logging.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panic",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				writeError(rec, http.StatusInternalServerError, "internal server error")
			}

			took := time.Since(start)
			s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rec.status, took)
			s.logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", took))
		}()

		next.ServeHTTP(rec, r)
	})
}

// routeLabel collapses per-entity path segments so metric labels stay
// low-cardinality.
func routeLabel(path string) string {
	for _, prefix := range []string{"/api/tasks/", "/api/workflows/cancel/", "/api/workflows/status/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{id}"
		}
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFromError maps service errors onto the HTTP contract: validation
// failures are 400, unknown entities 404, everything else 500.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAgentStopped),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, planner.ErrUnparseable),
		errors.Is(err, scheduler.ErrInvalidConfig),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// --- Health and Agent ---

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Time    string `json:"time"`
	Tasks   int    `json:"tasks"`
	Agent   string `json:"agent"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	agent := "stopped"
	if s.service.AgentRunning() {
		agent = "running"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		OK:      true,
		Version: s.service.Version(),
		Time:    time.Now().UTC().Format(time.RFC3339),
		Tasks:   s.service.TaskCount(),
		Agent:   agent,
	})
}

// handleAgentStatus handles GET /api/agent/status.
func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleAgentStart handles POST /api/agent/start.
func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.service.StartAgent()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleAgentStop handles POST /api/agent/stop.
func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.service.StopAgent()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type processRequest struct {
	Text string `json:"text"`
}

// handleProcess handles POST /api/agent/process.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	rec, err := s.service.ProcessText(r.Context(), req.Text)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Tasks ---

// handleTasks handles GET /api/tasks and POST /api/tasks.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTasks(w, r)
	case http.MethodPost:
		s.createTask(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	tasks := s.service.ListTasks(q.Get("status"), q.Get("type"), limit)
	if tasks == nil {
		tasks = []*models.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
	Priority   string         `json:"priority"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := s.service.CreateTask(models.TaskRequest{
		Type:       models.TaskType(req.Type),
		Parameters: req.Parameters,
		Priority:   models.Priority(req.Priority),
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleTaskByID handles GET /api/tasks/{id} and DELETE /api/tasks/{id}.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetTask(id)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		rec, err := s.service.DeleteTask(id)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Workflows ---

// handleWorkflows handles GET /api/workflows.
func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListWorkflows())
}

type workflowRunRequest struct {
	WorkflowName string         `json:"workflow_name"`
	Parameters   map[string]any `json:"parameters"`
}

// handleWorkflowExecute handles POST /api/workflows/execute.
func (s *Server) handleWorkflowExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req workflowRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.WorkflowName == "" {
		writeError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}

	rec, err := s.service.ExecuteWorkflow(r.Context(), req.WorkflowName, req.Parameters)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type scheduleRequest struct {
	WorkflowName   string                `json:"workflow_name"`
	Parameters     map[string]any        `json:"parameters"`
	ScheduleConfig models.ScheduleConfig `json:"schedule_config"`
}

// handleWorkflowSchedule handles POST /api/workflows/schedule.
func (s *Server) handleWorkflowSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.WorkflowName == "" {
		writeError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}

	run, err := s.service.ScheduleWorkflow(req.WorkflowName, req.Parameters, req.ScheduleConfig)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// handleWorkflowSchedules handles GET /api/workflows/schedules.
func (s *Server) handleWorkflowSchedules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs := s.service.ListSchedules(r.URL.Query().Get("status"))
	if runs == nil {
		runs = []*models.ScheduledWorkflowRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleWorkflowCancel handles POST /api/workflows/cancel/{schedule_id}.
func (s *Server) handleWorkflowCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/workflows/cancel/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "schedule id required")
		return
	}

	run, err := s.service.CancelSchedule(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleWorkflowStatus handles GET /api/workflows/status/{task_id}.
func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/workflows/status/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}

	rec, err := s.service.GetTask(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Twitter ---

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// handleTwitterSearch handles POST /api/twitter/search.
func (s *Server) handleTwitterSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	rec, err := s.service.SearchTweets(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type trendsRequest struct {
	Location string `json:"location"`
}

// handleTwitterTrends handles POST /api/twitter/analyze-trends.
func (s *Server) handleTwitterTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trendsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := s.service.AnalyzeTrends(r.Context(), req.Location)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type monitorRequest struct {
	Username string `json:"username"`
}

// handleTwitterMonitor handles POST /api/twitter/monitor-user.
func (s *Server) handleTwitterMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req monitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	rec, err := s.service.MonitorUser(r.Context(), strings.TrimPrefix(req.Username, "@"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type postRequest struct {
	Content string `json:"content"`
}

// handleTwitterPost handles POST /api/twitter/create-post.
func (s *Server) handleTwitterPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	rec, err := s.service.CreatePost(r.Context(), req.Content)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
