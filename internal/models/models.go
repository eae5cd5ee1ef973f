// Package models defines the core domain types for Warble.
package models

import "time"

// TaskStatus represents the current state of a task record.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskType identifies the operation a task performs.
type TaskType string

const (
	TypeSearchTweets     TaskType = "search_tweets"
	TypeGetUserTimeline  TaskType = "get_user_timeline"
	TypeCreateTweet      TaskType = "create_tweet"
	TypeLikeTweet        TaskType = "like_tweet"
	TypeRetweet          TaskType = "retweet"
	TypeFollowUser       TaskType = "follow_user"
	TypeGetTrends        TaskType = "get_trends"
	TypeAnalyzeSentiment TaskType = "analyze_sentiment"
	TypeMonitorUser      TaskType = "monitor_user"
	TypeGetUserInfo      TaskType = "get_user_info"
	TypeGetTweetByID     TaskType = "get_tweet_by_id"
	TypeGetFollowers     TaskType = "get_followers"
	TypeGetFollowing     TaskType = "get_following"
	TypeRunWorkflow      TaskType = "run_workflow"
)

// KnownTaskTypes lists every dispatchable task type.
var KnownTaskTypes = []TaskType{
	TypeSearchTweets,
	TypeGetUserTimeline,
	TypeCreateTweet,
	TypeLikeTweet,
	TypeRetweet,
	TypeFollowUser,
	TypeGetTrends,
	TypeAnalyzeSentiment,
	TypeMonitorUser,
	TypeGetUserInfo,
	TypeGetTweetByID,
	TypeGetFollowers,
	TypeGetFollowing,
	TypeRunWorkflow,
}

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t TaskType) bool {
	for _, k := range KnownTaskTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Priority orders task requests for human readers; dispatch is FIFO regardless.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TaskRequest describes one unit of work. Immutable once created.
type TaskRequest struct {
	Type       TaskType       `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   Priority       `json:"priority"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TaskRecord is the mutable lifecycle object for a TaskRequest. The store owns
// every record; other components hold copies.
//
// Exactly one of Result or Error is set, and only in a terminal state:
// Result with completed, Error with failed. Progress is meaningful only while
// running. ScheduleID links records fired by a schedule back to it.
type TaskRecord struct {
	ID          string         `json:"id"`
	Request     TaskRequest    `json:"request"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	ScheduleID  string         `json:"schedule_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// WorkflowType distinguishes templates meant for scheduling from one-offs.
type WorkflowType string

const (
	WorkflowOneShot   WorkflowType = "one_shot"
	WorkflowRecurring WorkflowType = "recurring"
)

// WorkflowStep is one sequential step of a workflow template. Parameters may
// contain {{key}} placeholders resolved from the run parameters and
// {{steps.NAME.field}} placeholders resolved from earlier step results.
type WorkflowStep struct {
	Name       string         `yaml:"name" json:"name"`
	Type       TaskType       `yaml:"type" json:"type"`
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
	Required   bool           `yaml:"required" json:"required"`
}

// WorkflowDefinition is a named, versioned workflow template. Definitions are
// immutable once registered; registering the same name again replaces it.
type WorkflowDefinition struct {
	Name              string         `yaml:"name" json:"name"`
	Description       string         `yaml:"description" json:"description"`
	Type              WorkflowType   `yaml:"type" json:"type"`
	Version           string         `yaml:"version" json:"version"`
	DefaultParameters map[string]any `yaml:"default_parameters" json:"default_parameters,omitempty"`
	Steps             []WorkflowStep `yaml:"steps" json:"steps"`
}

// ScheduleConfig controls the cadence of a scheduled workflow. Exactly one of
// IntervalSeconds or CronExpression must be set.
type ScheduleConfig struct {
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	CronExpression  string `json:"cron_expression,omitempty"`
	MaxRuns         int    `json:"max_runs,omitempty"`
}

// ScheduleStatus represents the state of a scheduled workflow run.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "active"
	ScheduleInactive ScheduleStatus = "inactive"
	ScheduleError    ScheduleStatus = "error"
)

// ScheduledWorkflowRun binds a workflow definition, parameters and a cadence
// to a live schedule. The workflow is referenced by name, not owned: removing
// the definition moves the schedule to ScheduleError at its next fire attempt.
type ScheduledWorkflowRun struct {
	ScheduleID   string         `json:"schedule_id"`
	WorkflowName string         `json:"workflow_name"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Schedule     ScheduleConfig `json:"schedule"`
	RunCount     int            `json:"run_count"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt    time.Time      `json:"next_run_at"`
	Status       ScheduleStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AgentStatus is the summary the control plane reports for the whole agent.
type AgentStatus struct {
	ActiveTasks        int        `json:"active_tasks"`
	CompletedTasks     int        `json:"completed_tasks"`
	ScheduledWorkflows int        `json:"scheduled_workflows"`
	LastActivity       *time.Time `json:"last_activity,omitempty"`
	Status             string     `json:"status"`
}
