package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/warble/internal/models"
)

// DefaultClientTimeout is the timeout for list and mutation requests.
const DefaultClientTimeout = 10 * time.Second

// SyncTimeout bounds the endpoints that run a task inline and hold the
// response open until it finishes.
const SyncTimeout = 5 * time.Minute

// Client wraps HTTP calls to the warble API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	syncClient *http.Client
}

// WorkflowInfo is a registered workflow plus its live scheduling state.
type WorkflowInfo struct {
	models.WorkflowDefinition
	ActiveSchedules int        `json:"active_schedules"`
	LastRunAt       *time.Time `json:"last_run_at"`
}

// NewClient creates an API client with timeouts.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		syncClient: &http.Client{Timeout: SyncTimeout},
	}
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(status string) ([]models.TaskRecord, error) {
	path := "/api/tasks"
	if status != "" {
		path += "?status=" + status
	}

	body, err := c.get(path)
	if err != nil {
		return nil, err
	}

	var tasks []models.TaskRecord
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(id string) (*models.TaskRecord, error) {
	body, err := c.get("/api/tasks/" + id)
	if err != nil {
		return nil, err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask submits a task for background execution.
func (c *Client) CreateTask(taskType string, params map[string]any) (*models.TaskRecord, error) {
	body, err := c.post("/api/tasks", map[string]any{
		"type":       taskType,
		"parameters": params,
	})
	if err != nil {
		return nil, err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask cancels a pending or running task, or removes a finished one.
func (c *Client) DeleteTask(id string) (*models.TaskRecord, error) {
	body, err := c.do(c.httpClient, http.MethodDelete, "/api/tasks/"+id, nil)
	if err != nil {
		return nil, err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ProcessText turns a natural-language instruction into a task and runs it.
func (c *Client) ProcessText(text string) (*models.TaskRecord, error) {
	body, err := c.postSync("/api/agent/process", map[string]any{"text": text})
	if err != nil {
		return nil, err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ExecuteWorkflow runs a workflow and waits for the result.
func (c *Client) ExecuteWorkflow(name string, params map[string]any) (*models.TaskRecord, error) {
	body, err := c.postSync("/api/workflows/execute", map[string]any{
		"workflow_name": name,
		"parameters":    params,
	})
	if err != nil {
		return nil, err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ScheduleWorkflow registers a recurring run. A zero interval lets the
// daemon apply its default cadence.
func (c *Client) ScheduleWorkflow(name string, intervalSeconds int) (*models.ScheduledWorkflowRun, error) {
	scheduleConfig := map[string]any{}
	if intervalSeconds > 0 {
		scheduleConfig["interval_seconds"] = intervalSeconds
	}

	body, err := c.post("/api/workflows/schedule", map[string]any{
		"workflow_name":   name,
		"schedule_config": scheduleConfig,
	})
	if err != nil {
		return nil, err
	}

	var run models.ScheduledWorkflowRun
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListSchedules fetches all scheduled workflow runs.
func (c *Client) ListSchedules() ([]models.ScheduledWorkflowRun, error) {
	body, err := c.get("/api/workflows/schedules")
	if err != nil {
		return nil, err
	}

	var runs []models.ScheduledWorkflowRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CancelSchedule deactivates a scheduled workflow run.
func (c *Client) CancelSchedule(id string) (*models.ScheduledWorkflowRun, error) {
	body, err := c.post("/api/workflows/cancel/"+id, nil)
	if err != nil {
		return nil, err
	}

	var run models.ScheduledWorkflowRun
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListWorkflows fetches registered workflow definitions.
func (c *Client) ListWorkflows() ([]WorkflowInfo, error) {
	body, err := c.get("/api/workflows")
	if err != nil {
		return nil, err
	}

	var workflows []WorkflowInfo
	if err := json.Unmarshal(body, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// AgentStatus fetches the agent summary.
func (c *Client) AgentStatus() (*models.AgentStatus, error) {
	body, err := c.get("/api/agent/status")
	if err != nil {
		return nil, err
	}

	var status models.AgentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StartAgent starts the agent loop.
func (c *Client) StartAgent() error {
	_, err := c.post("/api/agent/start", nil)
	return err
}

// StopAgent stops the agent loop.
func (c *Client) StopAgent() error {
	_, err := c.post("/api/agent/stop", nil)
	return err
}

// CheckHealth reports whether the daemon answers its health check.
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}
	return health.OK, nil
}

func (c *Client) get(path string) ([]byte, error) {
	return c.do(c.httpClient, http.MethodGet, path, nil)
}

func (c *Client) post(path string, data any) ([]byte, error) {
	return c.do(c.httpClient, http.MethodPost, path, data)
}

func (c *Client) postSync(path string, data any) ([]byte, error) {
	return c.do(c.syncClient, http.MethodPost, path, data)
}

func (c *Client) do(client *http.Client, method, path string, data any) ([]byte, error) {
	var reqBody io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", apiErrorMessage(body))
	}
	return body, nil
}

// apiErrorMessage pulls the message out of the API's {"error": ...} envelope,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return string(bytes.TrimSpace(body))
}
