package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"planport/internal/aggregate"
	"planport/internal/cache"
	"planport/internal/config"
	"planport/internal/domain"
	"planport/internal/parse"
	"planport/internal/render"
)

// loadConfig loads configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		cfg.Output = output
	}
	if cachePath, _ := cmd.Flags().GetString("cache"); cachePath != "" {
		cfg.CachePath = cachePath
	}
	if _, err := render.ParseFormat(cfg.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRenderer builds the stdout renderer for the configured format.
func newRenderer(cmd *cobra.Command, cfg *config.Config) *render.Renderer {
	format, _ := render.ParseFormat(cfg.Output)
	return render.NewRenderer(cmd.OutOrStdout(), format)
}

// progressWriter returns the stderr progress stream, or a discard
// writer under --quiet.
func progressWriter(cmd *cobra.Command) io.Writer {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}

// buildStagingSet parses and aggregates the workbook, emitting row
// warnings to the progress stream.
func buildStagingSet(cmd *cobra.Command, workbook string) (*domain.StagingSet, *parse.Result, error) {
	result, err := parse.NewParser(workbook).Rows()
	if err != nil {
		return nil, nil, err
	}
	progress := progressWriter(cmd)
	for _, warning := range result.Warnings {
		fmt.Fprintf(progress, "warning: skipped %s\n", warning.Error())
	}

	set, err := aggregate.Build(result.Rows)
	if err != nil {
		return nil, nil, err
	}
	return set, result, nil
}

// linkFromCache attaches cached remote ids to the staging set without
// touching the network, for verification runs.
func linkFromCache(set *domain.StagingSet, c *cache.Cache) {
	for _, project := range set.Projects {
		if remoteID, ok := c.Lookup(project.LocalKey); ok {
			id := remoteID
			project.RemoteID = &id
			project.State = domain.StateLinked
		}
	}
	for _, task := range set.Tasks {
		if remoteID, ok := c.Lookup(task.LocalKey); ok {
			id := remoteID
			task.RemoteID = &id
			task.State = domain.StateLinked
		}
	}
}

// openCache opens the identity cache configured for this run.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity cache %s: %w", cfg.CachePath, err)
	}
	return c, nil
}

// requireWorkbook validates the positional workbook argument.
func requireWorkbook(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one workbook path")
	}
	if _, err := os.Stat(args[0]); err != nil {
		return "", fmt.Errorf("workbook not readable: %w", err)
	}
	return args[0], nil
}
