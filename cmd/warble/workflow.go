package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/warble/internal/models"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflows",
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	RunE:  runWorkflowList,
}

var workflowExecuteCmd = &cobra.Command{
	Use:   "execute [workflow-name]",
	Short: "Execute a workflow and wait for the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowExecute,
}

var workflowScheduleCmd = &cobra.Command{
	Use:   "schedule [workflow-name]",
	Short: "Schedule a workflow to run on a cadence",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowSchedule,
}

var workflowSchedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List scheduled workflow runs",
	RunE:  runWorkflowSchedules,
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel [schedule-id]",
	Short: "Cancel a scheduled workflow run",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowCancel,
}

var (
	wfParams        string
	wfInterval      int
	wfCron          string
	wfMaxRuns       int
	schedulesStatus string
)

func init() {
	workflowCmd.AddCommand(workflowListCmd, workflowExecuteCmd, workflowScheduleCmd, workflowSchedulesCmd, workflowCancelCmd)

	workflowExecuteCmd.Flags().StringVar(&wfParams, "params", "{}", "Workflow parameters as JSON")

	workflowScheduleCmd.Flags().StringVar(&wfParams, "params", "{}", "Workflow parameters as JSON")
	workflowScheduleCmd.Flags().IntVar(&wfInterval, "interval", 0, "Run interval in seconds")
	workflowScheduleCmd.Flags().StringVar(&wfCron, "cron", "", "Cron expression (standard 5-field)")
	workflowScheduleCmd.Flags().IntVar(&wfMaxRuns, "max-runs", 0, "Deactivate after this many runs (0 = unlimited)")

	workflowSchedulesCmd.Flags().StringVar(&schedulesStatus, "status", "", "Filter by status (active, inactive, error)")
}

// workflowInfo mirrors the /api/workflows entries: the definition plus its
// live scheduling state.
type workflowInfo struct {
	models.WorkflowDefinition
	ActiveSchedules int        `json:"active_schedules"`
	LastRunAt       *time.Time `json:"last_run_at"`
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/workflows")
	if err != nil {
		return err
	}

	var workflows []workflowInfo
	if err := json.Unmarshal(resp, &workflows); err != nil {
		return err
	}

	if len(workflows) == 0 {
		fmt.Println("No workflows registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSTEPS\tSCHEDULES\tLAST RUN\tDESCRIPTION")
	for _, wf := range workflows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			wf.Name,
			wf.Type,
			len(wf.Steps),
			wf.ActiveSchedules,
			timeCell(wf.LastRunAt),
			truncate(wf.Description, 50))
	}
	w.Flush()
	return nil
}

func runWorkflowExecute(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if err := json.Unmarshal([]byte(wfParams), &params); err != nil {
		return fmt.Errorf("parsing --params: %w", err)
	}

	resp, err := apiPostSync("/api/workflows/execute", map[string]any{
		"workflow_name": args[0],
		"parameters":    params,
	})
	if err != nil {
		return err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Workflow %s finished: %s (task %s)\n", args[0], coloredStatus(task.Status), truncateID(task.ID))
	if task.Error != "" {
		fmt.Printf("Error: %s\n", task.Error)
	}
	if len(task.Result) > 0 {
		fmt.Println("Result:")
		printJSON(task.Result)
	}
	return nil
}

func runWorkflowSchedule(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if err := json.Unmarshal([]byte(wfParams), &params); err != nil {
		return fmt.Errorf("parsing --params: %w", err)
	}

	scheduleConfig := map[string]any{}
	if wfInterval > 0 {
		scheduleConfig["interval_seconds"] = wfInterval
	}
	if wfCron != "" {
		scheduleConfig["cron_expression"] = wfCron
	}
	if wfMaxRuns > 0 {
		scheduleConfig["max_runs"] = wfMaxRuns
	}

	resp, err := apiPost("/api/workflows/schedule", map[string]any{
		"workflow_name":   args[0],
		"parameters":      params,
		"schedule_config": scheduleConfig,
	})
	if err != nil {
		return err
	}

	var run models.ScheduledWorkflowRun
	if err := json.Unmarshal(resp, &run); err != nil {
		return err
	}

	fmt.Printf("Scheduled %s (schedule %s)\n", run.WorkflowName, run.ScheduleID)
	fmt.Printf("Next run: %s\n", run.NextRunAt.Local().Format(time.RFC3339))
	return nil
}

func runWorkflowSchedules(cmd *cobra.Command, args []string) error {
	path := "/api/workflows/schedules"
	if schedulesStatus != "" {
		path += "?status=" + schedulesStatus
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var runs []models.ScheduledWorkflowRun
	if err := json.Unmarshal(resp, &runs); err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No schedules found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tRUNS\tNEXT RUN\tLAST RUN")
	for _, run := range runs {
		next := run.NextRunAt
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(run.ScheduleID),
			run.WorkflowName,
			string(run.Status),
			runsCell(run),
			next.Local().Format("Jan 02 15:04"),
			timeCell(run.LastRunAt))
	}
	w.Flush()
	return nil
}

func runWorkflowCancel(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/workflows/cancel/"+args[0], nil)
	if err != nil {
		return err
	}

	var run models.ScheduledWorkflowRun
	if err := json.Unmarshal(resp, &run); err != nil {
		return err
	}

	fmt.Printf("Cancelled schedule %s (%s, ran %d times)\n", run.ScheduleID, run.WorkflowName, run.RunCount)
	return nil
}

func runsCell(run models.ScheduledWorkflowRun) string {
	if run.Schedule.MaxRuns > 0 {
		return fmt.Sprintf("%d/%d", run.RunCount, run.Schedule.MaxRuns)
	}
	return fmt.Sprintf("%d", run.RunCount)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04")
}
