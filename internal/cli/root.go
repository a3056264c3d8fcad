package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "planport",
	Short: "Migrate legacy worklog spreadsheets into a project-management system",
	Long: `planport ingests a legacy spreadsheet export of logged work, aggregates
it into canonical projects, tasks, and time entries, and materializes
them against a project-management API. Runs are idempotent: a local
identity cache records every created entity, so an interrupted run can
be resumed without duplicating work. A verification pass re-reads the
target and reports discrepancies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("output", "", "Output format: table, json, ndjson, yaml (overrides PLANPORT_OUTPUT)")
	rootCmd.PersistentFlags().String("cache", "", "Path to identity cache file (overrides PLANPORT_CACHE_PATH)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress the progress stream on stderr")
}
