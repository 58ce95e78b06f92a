package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/schemaprobe/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history <database>",
	Short: "Show summaries of past runs",
	Long: `Show summaries of runs previously recorded with --history.

Examples:
  schemaprobe history runs.db
  schemaprobe history runs.db --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 20, "Maximum number of runs to show")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := history.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRuns(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "#%d  %s  %s  (%dms, seed %d)\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.SchemaLocation,
			r.Duration.Milliseconds(), r.Seed)
		fmt.Fprintf(cmd.OutOrStdout(), "    %s, %s, %s\n",
			green(fmt.Sprintf("%d passed", r.Passed)),
			red(fmt.Sprintf("%d failed", r.Failed)),
			yellow(fmt.Sprintf("%d errored", r.Errored)))
	}
	return nil
}
