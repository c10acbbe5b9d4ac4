package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		return formatter.PrintTable(
			[]string{"SUBJECTS", "SCHEMAS", "COMPATIBILITY", "LOADED_OFFSET"},
			[][]string{{
				strconv.Itoa(stats.Subjects),
				strconv.Itoa(stats.Schemas),
				stats.GlobalCompatibility,
				strconv.FormatInt(stats.LoadedOffset, 10),
			}},
		)
	},
}
