package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/pkg/models"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive tasks and manage the dated archive",
}

var archiveTaskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Archive a task, relocating its manifest into a dated bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		location, err := Engine.ArchiveTask(args[0], taskActorFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Archived %s to %s\n", args[0], location)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived tasks, newest month first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		entries, err := Engine.ListArchive()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Archive is empty.")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("%s  %s\n", entry.Month, entry.TaskID)
		}
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print an archived manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		_, content, err := Engine.GetArchivedManifest(args[0])
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	},
}

var (
	restoreTitleFlag    string
	restoreClassFlag    string
	restorePriorityFlag string
)

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore <task-id>",
	Short: "Restore an archived task into the active store",
	Long: `Restore an archived task at the terminal stage.

The archived document is folded into the retrospective section. Fails if
a task with the same id is already active.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		task, err := Engine.RestoreTask(args[0], core.RestoreOverrides{
			Title:          restoreTitleFlag,
			Classification: restoreClassFlag,
			Priority:       models.Priority(restorePriorityFlag),
			Actor:          taskActorFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Restored %s to %s\n", task.ID, task.Stage)
		return nil
	},
}

func init() {
	archiveRestoreCmd.Flags().StringVar(&restoreTitleFlag, "title", "", "override the restored title")
	archiveRestoreCmd.Flags().StringVar(&restoreClassFlag, "classification", "", "override the restored classification")
	archiveRestoreCmd.Flags().StringVar(&restorePriorityFlag, "priority", "", "override the restored priority")

	archiveCmd.AddCommand(archiveTaskCmd, archiveListCmd, archiveShowCmd, archiveRestoreCmd)
	rootCmd.AddCommand(archiveCmd)
}
