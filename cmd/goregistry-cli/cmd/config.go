// =============================================================================
// CONFIG COMMANDS - COMPATIBILITY LEVELS
// =============================================================================
//
// USAGE:
//   goregistry config get [subject]
//   goregistry config set <level> [--subject s]
//
// Levels: NONE, BACKWARD, FORWARD, FULL. Without a subject the commands
// operate on the global default.
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"
)

var configSubjectFlag string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get and set compatibility levels",
}

var configGetCmd = &cobra.Command{
	Use:   "get [subject]",
	Short: "Show the effective compatibility level",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := ""
		if len(args) == 1 {
			subject = args[0]
		}
		level, err := client.GetCompatibility(cmd.Context(), subject)
		if err != nil {
			return err
		}
		return formatter.Print(map[string]string{"compatibility": level})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <level>",
	Short: "Set the compatibility level (global, or per subject with --subject)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.SetCompatibility(cmd.Context(), configSubjectFlag, args[0]); err != nil {
			return err
		}
		if configSubjectFlag == "" {
			formatter.PrintMessage("global compatibility set to %s", args[0])
		} else {
			formatter.PrintMessage("compatibility for %s set to %s", configSubjectFlag, args[0])
		}
		return nil
	},
}

func init() {
	configSetCmd.Flags().StringVar(&configSubjectFlag, "subject", "", "apply to one subject instead of globally")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
