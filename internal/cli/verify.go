package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"planport/internal/remote"
	"planport/internal/render"
	"planport/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <workbook>",
	Short: "Compare migrated state in the target system against the workbook",
	Long: `Re-derives the staging set from the workbook, attaches remote ids from
the identity cache, and compares every linked project and task against
the target system. Read-only: the target is never modified.

The ground truth is the live API by default; --source store reads the
target backend's SQLite database directly instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var verifySourceFlag string

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifySourceFlag, "source", "", "Verification source: api or store (overrides PLANPORT_VERIFY_SOURCE)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	workbook, err := requireWorkbook(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sourceName := cfg.VerifySource
	if verifySourceFlag != "" {
		sourceName = verifySourceFlag
	}

	set, _, err := buildStagingSet(cmd, workbook)
	if err != nil {
		return err
	}

	identityCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	linkFromCache(set, identityCache)

	var source verify.Source
	switch sourceName {
	case "api":
		if cfg.BaseURL == "" {
			return fmt.Errorf("remote base URL not configured (set PLANPORT_BASE_URL)")
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
		source = verify.NewAPISource(client)
	case "store":
		if cfg.StoreDBPath == "" {
			return fmt.Errorf("target store path not configured (set PLANPORT_STORE_DB_PATH)")
		}
		storeSource, closeFn, err := verify.OpenStoreSource(cfg.StoreDBPath)
		if err != nil {
			return err
		}
		defer closeFn()
		source = storeSource
	default:
		return fmt.Errorf("invalid verification source %q: must be api or store", sourceName)
	}

	report, err := verify.NewEngine(source, sourceName).Run(cmd.Context(), set)
	if err != nil {
		return fmt.Errorf("verification aborted: %w", err)
	}

	renderer := newRenderer(cmd, cfg)
	if renderer.Format() == render.FormatTable {
		return renderVerifyTable(cmd, renderer, report)
	}
	return renderer.RenderStructured(report)
}

func renderVerifyTable(cmd *cobra.Command, renderer *render.Renderer, report *verify.Report) error {
	rows := make([][]string, 0, len(report.Projects)+len(report.Tasks))
	for _, result := range report.Projects {
		rows = append(rows, []string{"project", result.Name, string(result.Outcome), result.Reason})
	}
	for _, result := range report.Tasks {
		detail := result.Reason
		if len(result.Diffs) > 0 {
			detail = diffSummary(result.Diffs)
		}
		rows = append(rows, []string{"task", result.Title, string(result.Outcome), detail})
	}
	if err := renderer.RenderTable([]string{"KIND", "NAME", "OUTCOME", "DETAIL"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nmatched %d, mismatched %d, missing %d, unlinked %d (source: %s)\n",
		report.Matched, report.Mismatched, report.Missing, report.Unlinked, report.SourceName)
	return nil
}

func diffSummary(diffs []verify.FieldDiff) string {
	summary := ""
	for i, diff := range diffs {
		if i > 0 {
			summary += "; "
		}
		summary += fmt.Sprintf("%s: staged %q, remote %q", diff.Field, diff.Staged, diff.Remote)
	}
	return summary
}
