package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage inter-task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on>",
	Short: "Record that a task depends on another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.AddDependency(args[0], args[1], taskActorFlag)
		if err != nil {
			return err
		}
		fmt.Printf("%s now depends on %s\n", args[0], args[1])
		if len(task.BlockedBy) > 0 {
			fmt.Printf("Blocked by: %s\n", strings.Join(task.BlockedBy, ", "))
		}
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <task-id> <depends-on>",
	Short: "Drop a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		if _, err := Engine.RemoveDependency(args[0], args[1], taskActorFlag); err != nil {
			return err
		}
		fmt.Printf("Removed dependency %s -> %s\n", args[0], args[1])
		return nil
	},
}

var depGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "List every recorded dependency edge",
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		edges, err := Engine.DependencyGraph()
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			fmt.Println("No dependencies.")
			return nil
		}
		for _, edge := range edges {
			fmt.Printf("%s -> %s\n", edge.TaskID, edge.DependsOn)
		}
		return nil
	},
}

func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depGraphCmd)
	rootCmd.AddCommand(depCmd)
}
