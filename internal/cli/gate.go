package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Inspect, validate, and set stage gates",
}

var gateStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show gate state for the task's current stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		status, err := Engine.GateStatus(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s on %s\n", status.TaskID, status.Stage)
		if len(status.Configured) == 0 {
			fmt.Println("No gates configured for this stage.")
			return nil
		}
		for _, name := range sortedGateDefNames(status.Configured) {
			def := status.Configured[name]
			fmt.Printf("  %-20s %-10s %s\n", name, def.Type, passFail(status.Gates[name]))
		}
		return nil
	},
}

var gateValidateCmd = &cobra.Command{
	Use:   "validate <task-id>",
	Short: "Run gate validation for the task's current stage",
	Long: `Run every gate configured for the task's current stage.

Automated gates execute their verification command; manual gates reflect
the stored approval. If everything passes and the stage is marked
auto-advance, the task moves one stage forward.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		validation, err := Engine.ValidateGates(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		for _, name := range sortedValidationNames(validation.Results) {
			detail := validation.Details[name]
			fmt.Printf("  %-20s %s\n", name, passFail(validation.Results[name]))
			if !detail.Success && detail.Stderr != "" {
				fmt.Printf("    stderr: %s\n", detail.Stderr)
			}
		}
		if validation.AllPassed {
			fmt.Println("All gates passed.")
		} else {
			fmt.Println("Gates failing.")
		}
		return nil
	},
}

var gateReasonFlag string

var gatePassCmd = &cobra.Command{
	Use:   "pass <task-id> <gate>",
	Short: "Approve a manual gate",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return setGate(cmd, args, true) },
}

var gateRejectCmd = &cobra.Command{
	Use:   "reject <task-id> <gate>",
	Short: "Reject a gate, recording the reason",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return setGate(cmd, args, false) },
}

func setGate(cmd *cobra.Command, args []string, passed bool) error {
	if Engine == nil {
		return fmt.Errorf("engine not initialized")
	}

	task, err := Engine.SetGate(cmd.Context(), args[0], args[1], passed, core.GateSetOptions{
		Actor:  taskActorFlag,
		Reason: gateReasonFlag,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Gate %s on %s set to %s (stage %s)\n", args[1], task.ID, passFail(passed), task.Stage)
	return nil
}

func sortedGateDefNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedValidationNames(m map[string]bool) []string {
	return sortedKeys(m)
}

func init() {
	gatePassCmd.Flags().StringVar(&gateReasonFlag, "reason", "", "reason recorded in the audit trail")
	gateRejectCmd.Flags().StringVar(&gateReasonFlag, "reason", "", "reason recorded in the audit trail")

	gateCmd.AddCommand(gateStatusCmd, gateValidateCmd, gatePassCmd, gateRejectCmd)
	rootCmd.AddCommand(gateCmd)
}
