package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Create and inspect stage-crossing handoff documents",
}

var handoffCreateCmd = &cobra.Command{
	Use:   "create <task-id> <from-stage> <to-stage>",
	Short: "Render a handoff document for a stage crossing",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.GetTask(args[0])
		if err != nil {
			return err
		}
		generator := core.NewHandoffGenerator(Workspace)
		path, err := generator.Create(*task, args[1], args[2], core.HandoffContext{
			Manifest: task.Manifest[normalizeSectionForStage(args[1])],
		})
		if err != nil {
			return err
		}
		fmt.Printf("Handoff written: %s\n", path)
		return nil
	},
}

var handoffListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List handoff documents for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generator := core.NewHandoffGenerator(Workspace)
		paths, err := generator.List(args[0])
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No handoffs.")
			return nil
		}
		for _, path := range paths {
			fmt.Println(path)
		}
		return nil
	},
}

var handoffShowCmd = &cobra.Command{
	Use:   "show <task-id> <from-stage> <to-stage>",
	Short: "Print a handoff document",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		generator := core.NewHandoffGenerator(Workspace)
		content, err := generator.Get(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	},
}

func normalizeSectionForStage(stage string) string {
	return core.NormalizeManifestSection(stage)
}

func init() {
	handoffCmd.AddCommand(handoffCreateCmd, handoffListCmd, handoffShowCmd)
	rootCmd.AddCommand(handoffCmd)
}
