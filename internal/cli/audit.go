package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/observability"
)

var auditCmd = &cobra.Command{
	Use:   "audit <task-id>",
	Short: "Print the audit trail for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		lines, err := Engine.AuditTrail(args[0])
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

var (
	eventsTypeFlag  string
	eventsTaskFlag  string
	eventsSinceFlag string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the JSONL event feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log not initialized")
		}

		filter := observability.EventFilter{
			Type:   eventsTypeFlag,
			TaskID: eventsTaskFlag,
		}
		if eventsSinceFlag != "" {
			since, err := time.Parse(time.RFC3339, eventsSinceFlag)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		events, err := EventLog.Read(filter)
		if err != nil {
			return err
		}
		for _, event := range events {
			fmt.Printf("%s  %-25s %s\n", event.Time.Format(time.RFC3339), event.Type, event.Message)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsTypeFlag, "type", "", "filter by event type")
	eventsCmd.Flags().StringVar(&eventsTaskFlag, "task", "", "filter by task id")
	eventsCmd.Flags().StringVar(&eventsSinceFlag, "since", "", "only events after this RFC3339 time")

	rootCmd.AddCommand(auditCmd, eventsCmd)
}
