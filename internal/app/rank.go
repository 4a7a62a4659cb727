package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/cache"
	"yutai-ranker/internal/ranking"
)

// RankOptions configure the rank command and the ranking part of export.
type RankOptions struct {
	Limit           int
	Month           int
	Category        string
	MinTotalYield   float64
	IncludeUnpriced bool
	Codes           []string
	// Format is table or json.
	Format string
	Out    io.Writer
}

func (o RankOptions) filters() ranking.Options {
	opts := ranking.Options{
		Limit:           o.Limit,
		Month:           o.Month,
		Category:        benefit.Category(o.Category),
		IncludeUnpriced: o.IncludeUnpriced,
		Codes:           o.Codes,
	}
	if o.MinTotalYield > 0 {
		opts.MinTotalYield = decimal.NewFromFloat(o.MinTotalYield)
	}
	return opts
}

func (a *App) newRanker(be *backend) *ranking.Ranker {
	var rows *cache.TTL[string, ranking.Row]
	if a.Config.Cache.RankingTTL > 0 {
		rows = cache.NewTTL[string, ranking.Row](a.Config.Cache.RankingTTL, a.Config.Cache.MaxEntries)
	}
	return ranking.New(be.benefits, be.prices, rows, ranking.Config{
		Periods:     a.Config.Metrics.RSIPeriods,
		HistoryDays: a.Config.Metrics.HistoryDays,
	}, a.Logger)
}

// Rank prints the ranking.
func (a *App) Rank(ctx context.Context, opts RankOptions) error {
	be, err := a.openBackend(ctx, false)
	if err != nil {
		return err
	}
	defer be.close()

	ranker := a.newRanker(be)
	rows, err := ranker.Rank(ctx, opts.filters())
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no ranked instruments")
		return nil
	}
	return writeRankTable(out, rows, ranker.Periods())
}

func writeRankTable(out io.Writer, rows []ranking.Row, periods []int) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, strings.Join(rankHeader(periods), "\t"))
	for _, row := range rows {
		fmt.Fprintln(writer, strings.Join(rankRecord(row, periods), "\t"))
	}
	return writer.Flush()
}

func rankHeader(periods []int) []string {
	header := []string{"code", "price", "dividend_pct", "benefit_pct", "total_pct", "min_shares", "investment", "annual_benefit", "months", "categories", "long_term"}
	for _, p := range periods {
		header = append(header, "rsi_"+strconv.Itoa(p))
	}
	return header
}

func rankRecord(row ranking.Row, periods []int) []string {
	months := make([]string, len(row.Months))
	for i, m := range row.Months {
		months[i] = strconv.Itoa(m)
	}
	categories := make([]string, len(row.Categories))
	for i, c := range row.Categories {
		categories[i] = string(c)
	}
	price := "-"
	if row.HasPrice {
		price = formatDecimal(row.Price, 1)
	}
	record := []string{
		row.Code,
		price,
		formatDecimal(row.Yield.DividendYieldPct, 2),
		formatDecimal(row.Yield.BenefitYieldPct, 2),
		formatDecimal(row.Yield.TotalYieldPct, 2),
		strconv.Itoa(row.Yield.MinShares),
		formatDecimal(row.Yield.Investment, 0),
		strconv.Itoa(row.Yield.AnnualBenefitValue),
		strings.Join(months, ","),
		strings.Join(categories, ","),
		strconv.FormatBool(row.LongTerm),
	}
	for _, p := range periods {
		record = append(record, formatOscillator(row.Oscillator(p)))
	}
	return record
}

func formatOscillator(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
