package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yutai-ranker/internal/app"
	"yutai-ranker/internal/service"
	"yutai-ranker/internal/universe"
)

var (
	scrapePool   poolFlags
	scrapeFresh  bool
	scrapeResume bool
	scrapeDryRun bool

	pricesPool   poolFlags
	pricesFresh  bool
	pricesDryRun bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [code...]",
	Short: "Scrape benefit pages for the universe, resuming from the checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeFresh && cmd.Flags().Changed("resume") {
			return fmt.Errorf("--fresh and --resume are mutually exclusive")
		}
		a := getApp()
		if err := scrapePool.apply(cmd, a.Config); err != nil {
			return err
		}
		codes, err := parseCodes(args)
		if err != nil {
			return err
		}

		report, err := a.Scrape(cmd.Context(), app.IngestOptions{
			Fresh:  scrapeFresh || !scrapeResume,
			DryRun: scrapeDryRun,
			Codes:  codes,
		})
		printReport(cmd.OutOrStdout(), report)
		return err
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices [code...]",
	Short: "Record one price sample for every code with benefits",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if err := pricesPool.apply(cmd, a.Config); err != nil {
			return err
		}
		codes, err := parseCodes(args)
		if err != nil {
			return err
		}

		report, err := a.Prices(cmd.Context(), app.IngestOptions{
			Fresh:           pricesFresh,
			RestartWhenDone: true,
			DryRun:          pricesDryRun,
			Codes:           codes,
		})
		printReport(cmd.OutOrStdout(), report)
		return err
	},
}

func init() {
	addPoolFlags(scrapeCmd, &scrapePool)
	scrapeCmd.Flags().BoolVar(&scrapeResume, "resume", true, "Resume from the checkpoint")
	scrapeCmd.Flags().BoolVar(&scrapeFresh, "fresh", false, "Discard the checkpoint and start over")
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "Run without database or checkpoint writes")

	addPoolFlags(pricesCmd, &pricesPool)
	pricesCmd.Flags().BoolVar(&pricesFresh, "fresh", false, "Discard the price checkpoint and start over")
	pricesCmd.Flags().BoolVar(&pricesDryRun, "dry-run", false, "Run without database or checkpoint writes")
}

func parseCodes(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	codes, err := universe.Parse(strings.NewReader(strings.Join(args, "\n")))
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no valid codes in arguments")
	}
	return codes, nil
}

func printReport(out io.Writer, r service.RunReport) {
	if r.RunID == "" {
		return
	}
	s := r.Summary
	fmt.Fprintf(out, "%s run %s: succeeded=%d failed=%d skipped=%d not_found=%d no_benefit=%d benefit_found=%d records=%d persist_failed=%d elapsed=%s\n",
		r.Job, r.RunID, s.Succeeded, s.Failed, s.Skipped, s.NotFound, s.NoBenefit, s.BenefitFound, s.Records, s.PersistFailed, s.Elapsed.Round(time.Millisecond))
	if len(r.FailedCodes) > 0 {
		fmt.Fprintf(out, "failed codes: %s\n", strings.Join(r.FailedCodes, " "))
	}
	if r.Interrupted {
		fmt.Fprintln(out, "interrupted; rerun to resume")
	}
}
