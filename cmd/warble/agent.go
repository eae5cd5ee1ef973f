package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fentz26/warble/internal/models"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Control the agent loop",
}

var agentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	RunE:  runAgentStatus,
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agent",
	RunE:  runAgentStart,
}

var agentStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the agent",
	RunE:  runAgentStop,
}

var agentAskCmd = &cobra.Command{
	Use:   "ask [instruction...]",
	Short: "Turn a natural-language instruction into a task and run it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAgentAsk,
}

func init() {
	agentCmd.AddCommand(agentStatusCmd, agentStartCmd, agentStopCmd, agentAskCmd)
}

func runAgentStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/agent/status")
	if err != nil {
		return err
	}

	var status models.AgentStatus
	if err := json.Unmarshal(resp, &status); err != nil {
		return err
	}

	state := color.RedString(status.Status)
	if status.Status == "running" {
		state = color.GreenString(status.Status)
	}

	fmt.Printf("Agent:               %s\n", state)
	fmt.Printf("Active tasks:        %d\n", status.ActiveTasks)
	fmt.Printf("Completed tasks:     %d\n", status.CompletedTasks)
	fmt.Printf("Scheduled workflows: %d\n", status.ScheduledWorkflows)
	if status.LastActivity != nil {
		fmt.Printf("Last activity:       %s\n", status.LastActivity.Local().Format("Jan 02 15:04:05"))
	}
	return nil
}

func runAgentStart(cmd *cobra.Command, args []string) error {
	if _, err := apiPost("/api/agent/start", nil); err != nil {
		return err
	}
	fmt.Println("Agent running")
	return nil
}

func runAgentStop(cmd *cobra.Command, args []string) error {
	if _, err := apiPost("/api/agent/stop", nil); err != nil {
		return err
	}
	fmt.Println("Agent stopped")
	return nil
}

func runAgentAsk(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	resp, err := apiPostSync("/api/agent/process", map[string]any{"text": text})
	if err != nil {
		return err
	}

	var task models.TaskRecord
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Task %s (%s): %s\n", truncateID(task.ID), task.Request.Type, coloredStatus(task.Status))
	if task.Error != "" {
		fmt.Printf("Error: %s\n", task.Error)
	}
	if len(task.Result) > 0 {
		printJSON(task.Result)
	}
	return nil
}
