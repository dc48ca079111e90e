package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create and inspect immutable task checkpoints",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <task-id> <message-count>",
	Short: "Snapshot the task's current state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		messageCount, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parsing message count %q: %w", args[1], err)
		}
		path, err := Engine.CreateCheckpoint(args[0], messageCount)
		if err != nil {
			return err
		}
		fmt.Printf("Checkpoint written: %s\n", path)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List checkpoints in ascending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		names, err := Engine.ListCheckpoints(args[0])
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No checkpoints.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var checkpointLatestCmd = &cobra.Command{
	Use:   "latest <task-id>",
	Short: "Print the newest checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		cp, err := Engine.LatestCheckpoint(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling checkpoint: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointCreateCmd, checkpointListCmd, checkpointLatestCmd)
	rootCmd.AddCommand(checkpointCmd)
}
