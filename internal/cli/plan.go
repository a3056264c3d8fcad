package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"planport/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan <workbook>",
	Short: "Parse and aggregate a workbook without touching the remote system",
	Long: `Reads the workbook, aggregates rows into canonical projects, tasks,
and time entries, and prints the staging summary. No network calls,
no cache writes.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

type planSummary struct {
	Workbook    string  `json:"workbook"`
	Rows        int     `json:"rows"`
	Skipped     int     `json:"skipped_rows"`
	Projects    int     `json:"projects"`
	Tasks       int     `json:"tasks"`
	TimeEntries int     `json:"time_entries"`
	TotalHours  float64 `json:"total_hours"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	workbook, err := requireWorkbook(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	set, parsed, err := buildStagingSet(cmd, workbook)
	if err != nil {
		return err
	}

	summary := planSummary{
		Workbook:    workbook,
		Rows:        len(parsed.Rows),
		Skipped:     len(parsed.Warnings),
		Projects:    len(set.Projects),
		Tasks:       len(set.Tasks),
		TimeEntries: len(set.TimeEntries),
	}
	for _, task := range set.Tasks {
		summary.TotalHours += task.TotalHours
	}

	renderer := newRenderer(cmd, cfg)
	if renderer.Format() == render.FormatTable {
		rows := make([][]string, 0, len(set.Tasks))
		for _, task := range set.OrderedTasks() {
			rows = append(rows, []string{
				set.Projects[task.ProjectKey].Name,
				task.Title,
				task.Status,
				fmt.Sprintf("%.2f", task.TotalHours),
			})
		}
		if err := renderer.RenderTable([]string{"PROJECT", "TASK", "STATUS", "HOURS"}, rows); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d projects, %d tasks, %d time entries (%.2f hours) from %d rows, %d skipped\n",
			summary.Projects, summary.Tasks, summary.TimeEntries, summary.TotalHours, summary.Rows, summary.Skipped)
		return nil
	}
	return renderer.RenderStructured(summary)
}
