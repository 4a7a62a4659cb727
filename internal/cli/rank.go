package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"yutai-ranker/internal/app"
)

var (
	rankLimit           int
	rankMonth           int
	rankCategory        string
	rankMinYield        float64
	rankIncludeUnpriced bool
	rankFormat          string
	rankHistoryDays     int
)

var rankCmd = &cobra.Command{
	Use:   "rank [code...]",
	Short: "Rank instruments by total yield",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := rankOptions(cmd, args)
		if err != nil {
			return err
		}
		switch strings.ToLower(rankFormat) {
		case "table", "json":
		default:
			return fmt.Errorf("--format must be table or json")
		}
		opts.Format = rankFormat
		opts.Out = cmd.OutOrStdout()
		return getApp().Rank(cmd.Context(), opts)
	},
}

func init() {
	addRankFlags(rankCmd)
	rankCmd.Flags().StringVar(&rankFormat, "format", "table", "Output format: table or json")
}

func addRankFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&rankLimit, "limit", 50, "Maximum rows, 0 for all")
	cmd.Flags().IntVar(&rankMonth, "month", 0, "Only instruments with a benefit in this month")
	cmd.Flags().StringVar(&rankCategory, "category", "", "Only instruments with a benefit of this category")
	cmd.Flags().Float64Var(&rankMinYield, "min-yield", 0, "Minimum total yield in percent")
	cmd.Flags().BoolVar(&rankIncludeUnpriced, "include-unpriced", false, "Keep instruments without a price sample")
	cmd.Flags().IntVar(&rankHistoryDays, "history-days", 0, "Price history window for the oscillator (defaults to config)")
}

func rankOptions(cmd *cobra.Command, args []string) (app.RankOptions, error) {
	if rankLimit < 0 {
		return app.RankOptions{}, fmt.Errorf("--limit cannot be negative")
	}
	if rankMonth < 0 || rankMonth > 12 {
		return app.RankOptions{}, fmt.Errorf("--month must be between 1 and 12")
	}
	if cmd.Flags().Changed("history-days") {
		if rankHistoryDays <= 0 {
			return app.RankOptions{}, fmt.Errorf("--history-days must be greater than zero")
		}
		getApp().Config.Metrics.HistoryDays = rankHistoryDays
	}
	codes, err := parseCodes(args)
	if err != nil {
		return app.RankOptions{}, err
	}
	return app.RankOptions{
		Limit:           rankLimit,
		Month:           rankMonth,
		Category:        rankCategory,
		MinTotalYield:   rankMinYield,
		IncludeUnpriced: rankIncludeUnpriced,
		Codes:           codes,
	}, nil
}
