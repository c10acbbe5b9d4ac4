// =============================================================================
// SUBJECT COMMANDS - REGISTER, LIST, GET, DELETE
// =============================================================================
//
// USAGE:
//   goregistry subject list [--deleted]
//   goregistry subject register <subject> --file schema.json
//   goregistry subject versions <subject> [--deleted]
//   goregistry subject get <subject> [version|latest]
//   goregistry subject delete <subject> [--version N] [--permanent]
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	deletedFlag   bool
	permanentFlag bool
	schemaFile    string
	schemaInline  string
	versionFlag   int
)

var subjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Manage subjects and their schema versions",
}

var subjectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all subjects",
	RunE: func(cmd *cobra.Command, args []string) error {
		subjects, err := client.ListSubjects(cmd.Context(), deletedFlag)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(subjects))
		for _, s := range subjects {
			rows = append(rows, []string{s})
		}
		return formatter.PrintTable([]string{"SUBJECT"}, rows)
	},
}

var subjectRegisterCmd = &cobra.Command{
	Use:   "register <subject>",
	Short: "Register a new schema version under a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := schemaInline
		if schemaFile != "" {
			data, err := os.ReadFile(schemaFile)
			if err != nil {
				return fmt.Errorf("read schema file: %w", err)
			}
			schema = string(data)
		}
		if schema == "" {
			return fmt.Errorf("provide a schema via --file or --schema")
		}

		id, err := client.Register(cmd.Context(), args[0], "JSON", schema)
		if err != nil {
			return err
		}
		formatter.PrintMessage("registered %s with id %d", args[0], id)
		if formatter.Format() != "table" {
			return formatter.Print(map[string]int64{"id": id})
		}
		return nil
	},
}

var subjectVersionsCmd = &cobra.Command{
	Use:   "versions <subject>",
	Short: "List a subject's version numbers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := client.ListVersions(cmd.Context(), args[0], deletedFlag)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(versions))
		for _, v := range versions {
			rows = append(rows, []string{strconv.Itoa(v)})
		}
		return formatter.PrintTable([]string{"VERSION"}, rows)
	},
}

var subjectGetCmd = &cobra.Command{
	Use:   "get <subject> [version]",
	Short: "Get one version of a subject (default: latest)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version := "latest"
		if len(args) == 2 {
			version = args[1]
		}
		sv, err := client.GetVersion(cmd.Context(), args[0], version)
		if err != nil {
			return err
		}
		return formatter.Print(sv)
	},
}

var subjectDeleteCmd = &cobra.Command{
	Use:   "delete <subject>",
	Short: "Delete a subject or one of its versions",
	Long: `Delete a subject or one of its versions.

Without --permanent this is a soft delete: the versions stay enumerable with
--deleted and can still be permanently deleted later. With --permanent the
versions are tombstoned in the backing log; this requires a prior soft
delete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFlag > 0 {
			if err := client.DeleteVersion(cmd.Context(), args[0], versionFlag, permanentFlag); err != nil {
				return err
			}
			formatter.PrintMessage("deleted %s version %d", args[0], versionFlag)
			return nil
		}

		versions, err := client.DeleteSubject(cmd.Context(), args[0], permanentFlag)
		if err != nil {
			return err
		}
		formatter.PrintMessage("deleted %s (versions %v)", args[0], versions)
		if formatter.Format() != "table" {
			return formatter.Print(versions)
		}
		return nil
	},
}

func init() {
	subjectListCmd.Flags().BoolVar(&deletedFlag, "deleted", false, "include soft-deleted subjects")
	subjectVersionsCmd.Flags().BoolVar(&deletedFlag, "deleted", false, "include soft-deleted versions")

	subjectRegisterCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "path to the schema file")
	subjectRegisterCmd.Flags().StringVar(&schemaInline, "schema", "", "inline schema body")

	subjectDeleteCmd.Flags().IntVar(&versionFlag, "version", 0, "delete only this version")
	subjectDeleteCmd.Flags().BoolVar(&permanentFlag, "permanent", false, "permanently delete (requires prior soft delete)")

	subjectCmd.AddCommand(subjectListCmd)
	subjectCmd.AddCommand(subjectRegisterCmd)
	subjectCmd.AddCommand(subjectVersionsCmd)
	subjectCmd.AddCommand(subjectGetCmd)
	subjectCmd.AddCommand(subjectDeleteCmd)
}
