package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/jobs"
	"github.com/aristath/foresight/internal/scheduler"
)

const (
	jobTraining = jobs.Training
	jobRefresh  = jobs.RefreshCache
	jobScrape   = jobs.Scrape
)

// jobCommand runs a registered job through the scheduler so it honours the
// same guard as its trigger.
func jobCommand(use, short string, id scheduler.JobID) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getContainer().Scheduler.Run(cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished\n", id)
			return nil
		},
	}
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove local working copies that have a durable counterpart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getContainer().Purger.PurgeTransientArtifacts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed=%d kept=%d errors=%d\n", res.Removed, res.Kept, res.Errors)
		return nil
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <NPS|NAS> <SYMBOL>",
	Short: "Print the next-day prediction for one instrument",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := domain.NewInstrument(args[0], args[1])
		if err != nil {
			return err
		}
		p, err := getContainer().Prediction.GetPrediction(cmd.Context(), inst)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"market":      inst.Market,
			"symbol":      inst.Symbol,
			"prediction":  p.Value,
			"cached":      p.Cached,
			"produced_at": p.ProducedAt,
		})
	},
}
