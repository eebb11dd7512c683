package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/config"
	"github.com/tainan-eats/storedir/internal/ingest"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/internal/monitoring"
	"github.com/tainan-eats/storedir/internal/resilience"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one acquisition and reconciliation batch",
	Long:  "Runs the configured acquisition strategies, merges their results, and reconciles every store into the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := applyIngestFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		plan, err := cfg.Plan()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := ingest.New(st, initClient(), plan, ingest.Options{
			APIKey:          cfg.Places.Key,
			FetchDetails:    cfg.Ingest.FetchDetails,
			Workers:         cfg.Ingest.Workers,
			PerSecond:       cfg.Ingest.PerSecond,
			DetailPerSecond: cfg.Ingest.DetailPerSecond,
			PageDelay:       cfg.PageDelay(),
			MaxPages:        cfg.Ingest.MaxPages,
			Guard:           resilience.NewGuard(cfg.GuardConfig()),
		})

		report, runErr := p.Run(ctx)
		if report == nil {
			return eris.Wrap(runErr, "ingest")
		}

		formatReport(os.Stdout, report)
		if runErr == nil {
			newChecker(st).Check(ctx)
		}

		reportPath, _ := cmd.Flags().GetString("report")
		if reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", reportPath))
		}
		return runErr
	},
}

func init() {
	addIngestFlags(ingestCmd)
	rootCmd.AddCommand(ingestCmd)
}

func addIngestFlags(c *cobra.Command) {
	c.Flags().String("plan", "", "YAML acquisition plan (overrides ingest.strategies)")
	c.Flags().StringSlice("strategy", nil, "run only the named strategies (name or label, repeatable)")
	c.Flags().Bool("no-details", false, "skip the per-store detail lookup")
	c.Flags().Int("workers", 0, "concurrent detail/reconcile workers (default from config)")
	c.Flags().String("report", "", "write the run report as JSON to this file")
}

// applyIngestFlags folds command-line overrides into c. A strategy filter
// replaces the configured plan with the selected strategies so validation
// only considers what will run.
func applyIngestFlags(cmd *cobra.Command, c *config.Config) error {
	if planFile, _ := cmd.Flags().GetString("plan"); planFile != "" {
		c.Ingest.PlanFile = planFile
	}
	if noDetails, _ := cmd.Flags().GetBool("no-details"); noDetails {
		c.Ingest.FetchDetails = false
	}
	if cmd.Flags().Changed("workers") {
		c.Ingest.Workers, _ = cmd.Flags().GetInt("workers")
	}

	names, _ := cmd.Flags().GetStringSlice("strategy")
	if len(names) == 0 {
		return nil
	}
	plan, err := c.Plan()
	if err != nil {
		return err
	}
	selected := plan.Filter(names)
	if len(selected.Strategies) == 0 {
		return eris.Errorf("ingest: no strategy matches %v", names)
	}
	c.Ingest.PlanFile = ""
	c.Ingest.Strategies = selected.Strategies
	return nil
}

func newChecker(runs monitoring.RunLister) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(runs),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}

func writeReport(path string, report *model.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ingest: marshal report")
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil {
		return eris.Wrapf(err, "ingest: write report %s", path)
	}
	return nil
}

// formatReport writes a human-readable run summary to out.
func formatReport(out io.Writer, r *model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	for _, s := range r.Strategies {
		line := fmt.Sprintf("%d records", s.Records)
		if s.Dropped > 0 {
			line += fmt.Sprintf(", %d dropped", s.Dropped)
		}
		if s.Error != "" {
			line += " (error: " + s.Error + ")"
		}
		_, _ = fmt.Fprintf(w, "  %s:\t%s\n", s.Name, line)
	}
	_, _ = fmt.Fprintf(w, "Merged:\t%d (%d duplicates)\n", r.Merged, r.Duplicates)
	for _, o := range []model.Outcome{
		model.OutcomeInserted,
		model.OutcomeUpdated,
		model.OutcomeStatusUpdated,
		model.OutcomeRetired,
		model.OutcomeUnchanged,
		model.OutcomeSkipped,
		model.OutcomeFailed,
	} {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", o, r.Outcomes[o])
	}
	_, _ = fmt.Fprintf(w, "Reviews:\t%d inserted, %d failed\n", r.Imports.ReviewsInserted, r.Imports.ReviewsFailed)
	_, _ = fmt.Fprintf(w, "Photos:\t%d inserted, %d failed\n", r.Imports.PhotosInserted, r.Imports.PhotosFailed)
	_ = w.Flush()

	for _, name := range r.NewStores {
		_, _ = fmt.Fprintf(out, "+ %s\n", name)
	}
	for _, c := range r.Changes {
		_, _ = fmt.Fprintf(out, "~ %s: rating %s -> %s, reviews %d -> %d, status %s -> %s\n",
			c.Name, ratingText(c.OldRating), ratingText(c.NewRating),
			c.OldReviewCount, c.NewReviewCount, c.OldStatus, c.NewStatus)
	}
	for _, name := range r.Retired {
		_, _ = fmt.Fprintf(out, "- %s\n", name)
	}
}

func ratingText(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *r)
}
