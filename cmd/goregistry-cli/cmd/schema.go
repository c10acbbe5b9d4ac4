// =============================================================================
// SCHEMA COMMANDS - GLOBAL-ID LOOKUPS
// =============================================================================
//
// USAGE:
//   goregistry schema get <id>
//
// =============================================================================

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Look up schemas by global ID",
}

var schemaGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get the schema body registered under a global ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("schema id must be a positive integer, got %q", args[0])
		}

		typ, schema, err := client.GetSchemaByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		return formatter.Print(map[string]string{
			"schemaType": typ,
			"schema":     schema,
		})
	},
}

func init() {
	schemaCmd.AddCommand(schemaGetCmd)
}
