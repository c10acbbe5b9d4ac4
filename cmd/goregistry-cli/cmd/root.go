// =============================================================================
// ROOT COMMAND - CLI ENTRY POINT AND GLOBAL FLAGS
// =============================================================================
//
// GLOBAL FLAGS:
//   --server, -s    Server URL (default: http://localhost:8081)
//   --output, -o    Output format: table, json, yaml (default: table)
//   --timeout       Request timeout in seconds (default: 30)
//
// SUBCOMMANDS:
//   subject     Manage subjects and their versions
//   schema      Look up schemas by global ID
//   config      Get/set compatibility levels
//   stats       Registry statistics
//   version     Show version information
//
// =============================================================================

package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"goregistry/internal/cli"
)

var (
	serverFlag  string
	outputFlag  string
	timeoutFlag int

	client    *cli.Client
	formatter *cli.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "goregistry",
	Short: "Command-line interface for the goregistry schema registry",
	Long: `goregistry CLI - Manage schemas, subjects and compatibility levels.

goregistry is a schema registry backed by a replicated append-only log,
with linearizable writes and content-addressed schema IDs.

Use "goregistry [command] --help" for more information about a command.`,
	PersistentPreRunE: initializeClient,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "",
		"Server URL (env: GOREGISTRY_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table",
		"Output format: table, json, yaml")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 30,
		"Request timeout in seconds")

	rootCmd.AddCommand(subjectCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeClient sets up the HTTP client and formatter before each command.
func initializeClient(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	formatter = cli.NewFormatter(format)

	server := serverFlag
	if server == "" {
		server = os.Getenv("GOREGISTRY_SERVER")
	}
	cfg := cli.DefaultClientConfig()
	if server != "" {
		cfg.ServerURL = server
	}
	if timeoutFlag > 0 {
		cfg.Timeout = time.Duration(timeoutFlag) * time.Second
	}
	client = cli.NewClient(cfg)
	return nil
}
