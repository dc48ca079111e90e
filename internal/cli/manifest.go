package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/opsd/internal/core"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Read and update per-task manifest documents",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print the rendered manifest document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		content, err := Engine.GetManifest(args[0])
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	},
}

var manifestSetCmd = &cobra.Command{
	Use:   "set <task-id> <section> <content>",
	Short: "Replace one manifest section",
	Long: fmt.Sprintf(`Replace one manifest section and re-render the document.

Valid sections (case-insensitive): %s.`, strings.Join(core.ManifestSections, ", ")),
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("engine not initialized")
		}

		content := strings.Join(args[2:], " ")
		if _, err := Engine.UpdateManifestSection(args[0], args[1], content, taskActorFlag); err != nil {
			return err
		}
		fmt.Printf("Updated section %s of %s\n", strings.ToLower(args[1]), args[0])
		return nil
	},
}

func init() {
	manifestCmd.AddCommand(manifestShowCmd, manifestSetCmd)
	rootCmd.AddCommand(manifestCmd)
}
