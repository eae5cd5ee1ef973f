package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fentz26/warble/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Submit a new task",
	RunE:  runTaskAdd,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a task, or delete it if already finished",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var (
	listStatus  string
	listType    string
	listLimit   int
	addType     string
	addParams   string
	addPriority string
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskAddCmd, taskCancelCmd)

	taskListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	taskListCmd.Flags().StringVar(&listType, "type", "", "Filter by task type")
	taskListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of finished tasks to include")

	taskAddCmd.Flags().StringVar(&addType, "type", "", "Task type (e.g. search_tweets, create_tweet)")
	taskAddCmd.Flags().StringVar(&addParams, "params", "{}", "Task parameters as JSON")
	taskAddCmd.Flags().StringVar(&addPriority, "priority", "", "Priority (low, medium, high)")
	taskAddCmd.MarkFlagRequired("type")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if listStatus != "" {
		q.Set("status", listStatus)
	}
	if listType != "" {
		q.Set("type", listType)
	}
	if listLimit > 0 {
		q.Set("limit", strconv.Itoa(listLimit))
	}

	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var tasks []models.TaskRecord
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(t.ID),
			t.Request.Type,
			coloredStatus(t.Status),
			progressCell(t),
			t.CreatedAt.Local().Format("15:04:05"))
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/tasks/" + args[0])
	if err != nil {
		return err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", task.ID)
	fmt.Printf("Type:     %s\n", task.Request.Type)
	fmt.Printf("Status:   %s\n", coloredStatus(task.Status))
	fmt.Printf("Priority: %s\n", task.Request.Priority)
	if task.ScheduleID != "" {
		fmt.Printf("Schedule: %s\n", task.ScheduleID)
	}
	fmt.Printf("Created:  %s\n", task.CreatedAt.Local().Format(time.RFC3339))
	if task.StartedAt != nil {
		fmt.Printf("Started:  %s\n", task.StartedAt.Local().Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", task.CompletedAt.Local().Format(time.RFC3339))
	}
	if task.Error != "" {
		fmt.Printf("Error:    %s\n", color.RedString(task.Error))
	}

	if len(task.Request.Parameters) > 0 {
		fmt.Println("Parameters:")
		printJSON(task.Request.Parameters)
	}
	if len(task.Result) > 0 {
		fmt.Println("Result:")
		printJSON(task.Result)
	}
	return nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if err := json.Unmarshal([]byte(addParams), &params); err != nil {
		return fmt.Errorf("parsing --params: %w", err)
	}

	body := map[string]any{
		"type":       addType,
		"parameters": params,
	}
	if addPriority != "" {
		body["priority"] = addPriority
	}

	resp, err := apiPost("/api/tasks", body)
	if err != nil {
		return err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Created task %s (%s)\n", task.ID, task.Status)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	resp, err := apiDelete("/api/tasks/" + args[0])
	if err != nil {
		return err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	switch task.Status {
	case models.TaskStatusCancelled:
		fmt.Printf("Cancelled task %s\n", task.ID)
	case models.TaskStatusRunning:
		fmt.Printf("Cancellation signalled for running task %s\n", task.ID)
	default:
		fmt.Printf("Removed finished task %s (%s)\n", task.ID, task.Status)
	}
	return nil
}

// --- Helpers ---

func coloredStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString(string(status))
	case models.TaskStatusFailed:
		return color.RedString(string(status))
	case models.TaskStatusRunning:
		return color.CyanString(string(status))
	case models.TaskStatusCancelled:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func progressCell(t models.TaskRecord) string {
	if t.Status == models.TaskStatusRunning && t.Progress > 0 {
		return fmt.Sprintf("%d%%", t.Progress)
	}
	return "-"
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		fmt.Printf("  %v\n", v)
		return
	}
	fmt.Printf("  %s\n", out)
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
