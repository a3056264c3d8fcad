package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"planport/internal/driver"
	"planport/internal/remote"
	"planport/internal/render"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <workbook>",
	Short: "Migrate a workbook into the remote project-management system",
	Long: `Runs the full migration: parse, aggregate, then create projects, tasks,
and time entries against the remote API. Entities already recorded in
the identity cache are skipped, so re-running after an interruption
resumes where the previous run stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

var (
	migrateDryRun bool
	migrateJobs   int
	migrateUpdate bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Count work without any remote calls or cache writes")
	migrateCmd.Flags().IntVar(&migrateJobs, "jobs", 0, "Worker pool size for independent entities (default from config)")
	migrateCmd.Flags().BoolVar(&migrateUpdate, "update", false, "Push staged fields to tasks that are already linked")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	workbook, err := requireWorkbook(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("remote base URL not configured (set PLANPORT_BASE_URL)")
	}

	set, _, err := buildStagingSet(cmd, workbook)
	if err != nil {
		return err
	}

	identityCache, err := openCache(cfg)
	if err != nil {
		return err
	}

	client, err := remote.NewClient(remote.Options{
		BaseURL:      cfg.BaseURL,
		Token:        cfg.APIToken,
		HTTPTimeout:  cfg.HTTPTimeoutDuration(),
		RetryLimit:   cfg.RetryLimit,
		RetryBase:    cfg.RetryBase(),
		RetryCeiling: cfg.RetryCeiling(),
	})
	if err != nil {
		return err
	}

	jobs := migrateJobs
	if jobs == 0 {
		jobs = cfg.Jobs
	}

	d := driver.New(client, identityCache, driver.Options{
		Jobs:         jobs,
		DryRun:       migrateDryRun,
		UpdateLinked: migrateUpdate,
		Progress:     progressWriter(cmd),
	})

	report, runErr := d.Run(cmd.Context(), set)
	if report != nil {
		renderer := newRenderer(cmd, cfg)
		if renderer.Format() == render.FormatTable {
			if err := renderMigrationTable(cmd, renderer, report); err != nil {
				return err
			}
		} else if err := renderer.RenderStructured(report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("migration aborted: %w", runErr)
	}
	return nil
}

func renderMigrationTable(cmd *cobra.Command, renderer *render.Renderer, report *driver.Report) error {
	rows := [][]string{
		{"projects", count(report.Projects.Created), count(report.Projects.AlreadyPresent), count(report.Projects.Failed)},
		{"tasks", count(report.Tasks.Created), count(report.Tasks.AlreadyPresent), count(report.Tasks.Failed)},
		{"time entries", count(report.TimeEntries.Created), count(report.TimeEntries.AlreadyPresent), count(report.TimeEntries.Failed)},
	}
	if err := renderer.RenderTable([]string{"KIND", "CREATED", "ALREADY PRESENT", "FAILED"}, rows); err != nil {
		return err
	}
	for _, entityErr := range report.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "failed %s %s: %s\n", entityErr.Kind, entityErr.LocalKey, entityErr.Reason)
	}
	return nil
}

func count(n int) string {
	return fmt.Sprintf("%d", n)
}
