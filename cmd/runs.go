package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tainan-eats/storedir/internal/model"
)

// showSearchDepth is how many recent runs "runs show" looks through.
const showSearchDepth = 200

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the full report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, showSearchDepth)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		run, ok := findRun(runs, args[0])
		if !ok {
			return eris.Errorf("runs show: no run matches %q", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// findRun returns the run whose id equals or starts with id.
func findRun(runs []model.RunReport, id string) (model.RunReport, bool) {
	if id == "" {
		return model.RunReport{}, false
	}
	for _, r := range runs {
		if r.ID == id || strings.HasPrefix(r.ID, id) {
			return r, true
		}
	}
	return model.RunReport{}, false
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tMERGED\tINSERTED\tUPDATED\tRETIRED\tFAILED")
	_, _ = fmt.Fprintln(w, "--\t-------\t--------\t------\t--------\t-------\t-------\t------")

	for _, r := range runs {
		dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		updated := r.Outcomes[model.OutcomeUpdated] + r.Outcomes[model.OutcomeStatusUpdated]

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Merged,
			r.Outcomes[model.OutcomeInserted],
			updated,
			r.Outcomes[model.OutcomeRetired],
			r.Outcomes[model.OutcomeFailed],
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
