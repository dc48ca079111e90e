package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/pkg/models"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the workspace directory tree and seed configuration",
	Long: `Create the workspace directories and seed pipeline, agent, and
classification configuration, empty data files, and the default
stage-pair handoff templates. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := core.BootstrapWorkspace(models.NewWorkspace(BasePath))
		if err != nil {
			return err
		}

		fmt.Printf("Workspace ready at %s\n", result.Root)
		fmt.Printf("Directories created: %d\n", result.DirectoriesCreated)
		for _, file := range result.FilesSeeded {
			fmt.Printf("Seeded %s\n", file)
		}
		fmt.Printf("Stages=%d, Agents=%d, Classifications=%d\n", result.Stages, result.Agents, result.Classifications)
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List stored notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if Notifications == nil {
			return fmt.Errorf("notification store not initialized")
		}

		list, err := Notifications.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range list {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %s  [%s] %s\n", marker, n.CreatedAt.Format("2006-01-02 15:04"), n.Type, n.Title)
			if n.Description != "" {
				fmt.Printf("    %s\n", n.Description)
			}
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Notifications == nil {
			return fmt.Errorf("notification store not initialized")
		}
		if err := Notifications.MarkRead(args[0]); err != nil {
			return err
		}
		fmt.Printf("Marked %s as read\n", args[0])
		return nil
	},
}

func init() {
	notificationsCmd.AddCommand(notificationsReadCmd)
	rootCmd.AddCommand(initCmd, notificationsCmd)
}
