package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage pipeline tasks (create, list, show, update, delete)",
}

var (
	taskCreateDescFlag     string
	taskCreateClassFlag    string
	taskCreatePriorityFlag string
	taskCreateDepsFlag     []string
	taskActorFlag          string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task in the first pipeline stage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.CreateTask(core.CreateTaskRequest{
			Title:          strings.Join(args, " "),
			Description:    taskCreateDescFlag,
			Classification: taskCreateClassFlag,
			Priority:       models.Priority(taskCreatePriorityFlag),
			Dependencies:   taskCreateDepsFlag,
			Actor:          taskActorFlag,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created %s in %s\n", task.ID, task.Stage)
		if len(task.BlockedBy) > 0 {
			fmt.Printf("Blocked by: %s\n", strings.Join(task.BlockedBy, ", "))
		}
		return nil
	},
}

var (
	taskListStageFlag    string
	taskListAgentFlag    string
	taskListClassFlag    string
	taskListPriorityFlag string
	taskListTextFlag     string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		tasks, err := Engine.ListTasks(storage.TaskFilter{
			Stage:          taskListStageFlag,
			Agent:          taskListAgentFlag,
			Classification: taskListClassFlag,
			Priority:       models.Priority(taskListPriorityFlag),
			Text:           taskListTextFlag,
		})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		for _, task := range tasks {
			line := fmt.Sprintf("%s  %-10s %-8s %s", task.ID, task.Stage, task.Priority, task.Title)
			if len(task.BlockedBy) > 0 {
				line += fmt.Sprintf("  [blocked by %s]", strings.Join(task.BlockedBy, ", "))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show full task detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.GetTask(args[0])
		if err != nil {
			return err
		}
		printTask(task)
		return nil
	},
}

var (
	taskUpdateTitleFlag    string
	taskUpdateDescFlag     string
	taskUpdateClassFlag    string
	taskUpdatePriorityFlag string
	taskUpdateAgentFlag    string
)

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Update task fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		req := core.UpdateTaskRequest{Actor: taskActorFlag}
		if cmd.Flags().Changed("title") {
			req.Title = &taskUpdateTitleFlag
		}
		if cmd.Flags().Changed("description") {
			req.Description = &taskUpdateDescFlag
		}
		if cmd.Flags().Changed("classification") {
			req.Classification = &taskUpdateClassFlag
		}
		if cmd.Flags().Changed("priority") {
			p := models.Priority(taskUpdatePriorityFlag)
			req.Priority = &p
		}
		if cmd.Flags().Changed("agent") {
			req.AssignedAgent = &taskUpdateAgentFlag
		}

		task, err := Engine.UpdateTask(args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s\n", task.ID)
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Force-delete a task at any stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		if err := Engine.DeleteTask(args[0], taskActorFlag); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var (
	transitionForceFlag  bool
	transitionReasonFlag string
)

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <target-stage>",
	Short: "Transition a task to a stage",
	Long: `Transition a task to the given stage.

Forward moves require every gate on the current stage to pass and all
dependencies to be resolved. Backward moves are ungated. Non-adjacent
jumps require --force.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.Transition(cmd.Context(), args[0], args[1], core.TransitionOptions{
			Force:  transitionForceFlag,
			Reason: transitionReasonFlag,
			Actor:  taskActorFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s is now in %s (agent: %s)\n", task.ID, task.Stage, orDash(task.AssignedAgent))
		return nil
	},
}

var taskAdvanceCmd = &cobra.Command{
	Use:   "advance <task-id>",
	Short: "Move a task one stage forward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.Advance(cmd.Context(), args[0], core.TransitionOptions{
			Reason: transitionReasonFlag,
			Actor:  taskActorFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s advanced to %s\n", task.ID, task.Stage)
		return nil
	},
}

func printTask(task *models.Task) {
	fmt.Printf("%s: %s\n", task.ID, task.Title)
	fmt.Printf("  Stage:          %s\n", task.Stage)
	fmt.Printf("  Priority:       %s\n", task.Priority)
	fmt.Printf("  Classification: %s\n", orDash(task.Classification))
	fmt.Printf("  Agent:          %s\n", orDash(task.AssignedAgent))
	if task.Description != "" {
		fmt.Printf("  Description:    %s\n", task.Description)
	}
	if len(task.Dependencies) > 0 {
		fmt.Printf("  Dependencies:   %s\n", strings.Join(task.Dependencies, ", "))
	}
	if len(task.BlockedBy) > 0 {
		fmt.Printf("  Blocked by:     %s\n", strings.Join(task.BlockedBy, ", "))
	}
	if len(task.Gates) > 0 {
		fmt.Println("  Gates:")
		for _, name := range sortedKeys(task.Gates) {
			fmt.Printf("    %s: %s\n", name, passFail(task.Gates[name]))
		}
	}
	if len(task.StageHistory) > 0 {
		fmt.Println("  Stage history:")
		for _, visit := range task.StageHistory {
			if visit.ExitedAt == nil {
				fmt.Printf("    %s (entered %s, current)\n", visit.Stage, visit.EnteredAt.Format("2006-01-02 15:04"))
			} else {
				fmt.Printf("    %s (%ds)\n", visit.Stage, visit.DurationSeconds)
			}
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func passFail(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskCreateDescFlag, "description", "", "task description")
	taskCreateCmd.Flags().StringVar(&taskCreateClassFlag, "classification", "", "task classification")
	taskCreateCmd.Flags().StringVar(&taskCreatePriorityFlag, "priority", "", "priority (low, medium, high, urgent)")
	taskCreateCmd.Flags().StringSliceVar(&taskCreateDepsFlag, "depends-on", nil, "task ids this task depends on")

	taskListCmd.Flags().StringVar(&taskListStageFlag, "stage", "", "filter by stage")
	taskListCmd.Flags().StringVar(&taskListAgentFlag, "agent", "", "filter by assigned agent")
	taskListCmd.Flags().StringVar(&taskListClassFlag, "classification", "", "filter by classification")
	taskListCmd.Flags().StringVar(&taskListPriorityFlag, "priority", "", "filter by priority")
	taskListCmd.Flags().StringVar(&taskListTextFlag, "text", "", "filter by title/description text")

	taskUpdateCmd.Flags().StringVar(&taskUpdateTitleFlag, "title", "", "new title")
	taskUpdateCmd.Flags().StringVar(&taskUpdateDescFlag, "description", "", "new description")
	taskUpdateCmd.Flags().StringVar(&taskUpdateClassFlag, "classification", "", "new classification")
	taskUpdateCmd.Flags().StringVar(&taskUpdatePriorityFlag, "priority", "", "new priority")
	taskUpdateCmd.Flags().StringVar(&taskUpdateAgentFlag, "agent", "", "new assigned agent")

	taskMoveCmd.Flags().BoolVar(&transitionForceFlag, "force", false, "skip gate/dependency checks and allow jumps")
	taskMoveCmd.Flags().StringVar(&transitionReasonFlag, "reason", "", "reason recorded in the audit trail")
	taskAdvanceCmd.Flags().StringVar(&transitionReasonFlag, "reason", "", "reason recorded in the audit trail")

	rootCmd.PersistentFlags().StringVar(&taskActorFlag, "actor", "", "actor recorded in the audit trail")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskUpdateCmd, taskDeleteCmd, taskMoveCmd, taskAdvanceCmd)
	rootCmd.AddCommand(taskCmd)
}
