// Package ranking orders instruments by total yield using stored benefits and prices.
package ranking

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/cache"
	"yutai-ranker/internal/metrics"
	"yutai-ranker/internal/storage"
)

// Row is the derived view of one instrument.
type Row struct {
	Code        string                     `json:"code"`
	Price       decimal.Decimal            `json:"price"`
	PriceAt     time.Time                  `json:"price_at"`
	HasPrice    bool                       `json:"has_price"`
	Yield       metrics.YieldResult        `json:"yield"`
	Oscillators []metrics.OscillatorResult `json:"oscillators"`
	Categories  []benefit.Category         `json:"categories"`
	Months      []int                      `json:"months"`
	LongTerm    bool                       `json:"long_term"`
	Benefits    int                        `json:"benefits"`
}

// Oscillator returns the value for period, or nil.
func (r Row) Oscillator(period int) *float64 {
	for _, o := range r.Oscillators {
		if o.Period == period {
			return o.Value
		}
	}
	return nil
}

// Config fixes how rows are derived.
type Config struct {
	Periods     []int
	HistoryDays int
}

// Options filter and cut a ranking.
type Options struct {
	MinTotalYield   decimal.Decimal
	Limit           int
	Month           int
	Category        benefit.Category
	IncludeUnpriced bool
	Codes           []string
}

// Ranker derives and orders rows. Derived rows are cached per code.
type Ranker struct {
	benefits storage.BenefitStore
	prices   storage.PriceSampleStore
	rows     *cache.TTL[string, Row]
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds a ranker. rows may be nil to disable caching.
func New(benefits storage.BenefitStore, prices storage.PriceSampleStore, rows *cache.TTL[string, Row], cfg Config, logger zerolog.Logger) *Ranker {
	if len(cfg.Periods) == 0 {
		cfg.Periods = metrics.DefaultPeriods
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 120
	}
	return &Ranker{
		benefits: benefits,
		prices:   prices,
		rows:     rows,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ranker").Logger(),
		now:      time.Now,
	}
}

// Periods returns the oscillator periods rows carry.
func (r *Ranker) Periods() []int { return slices.Clone(r.cfg.Periods) }

// Invalidate drops cached rows; with no codes the whole cache is purged.
func (r *Ranker) Invalidate(codes ...string) {
	if r.rows == nil {
		return
	}
	if len(codes) == 0 {
		r.rows.Purge()
		return
	}
	for _, code := range codes {
		r.rows.Delete(code)
	}
}

// Row derives the row of one code.
func (r *Ranker) Row(ctx context.Context, code string) (Row, error) {
	if r.rows != nil {
		if row, ok := r.rows.Get(code); ok {
			return row, nil
		}
	}

	records, err := r.benefits.ListBenefits(ctx, code)
	if err != nil {
		return Row{}, fmt.Errorf("list benefits of %s: %w", code, err)
	}
	row := Row{Code: code, Benefits: len(records)}
	row.Categories, row.Months, row.LongTerm = describe(records)

	dividend := decimal.Zero
	if r.prices != nil {
		latest, ok, err := r.prices.LatestPriceSample(ctx, code)
		if err != nil {
			return Row{}, fmt.Errorf("latest price of %s: %w", code, err)
		}
		if ok {
			row.HasPrice = true
			row.Price = latest.Price
			row.PriceAt = latest.SampledAt
			dividend = latest.DividendYieldPct
		}

		since := r.now().AddDate(0, 0, -r.cfg.HistoryDays)
		history, err := r.prices.ListPriceHistory(ctx, code, since)
		if err != nil {
			return Row{}, fmt.Errorf("price history of %s: %w", code, err)
		}
		row.Oscillators = metrics.Oscillators(storage.Prices(history), r.cfg.Periods)
	} else {
		row.Oscillators = metrics.Oscillators(nil, r.cfg.Periods)
	}
	row.Yield = metrics.Yield(row.Price, records, dividend)

	if r.rows != nil {
		r.rows.Set(code, row)
	}
	return row, nil
}

// Rank derives rows for every code with benefits (or opts.Codes) and orders them by
// total yield descending, then code ascending.
func (r *Ranker) Rank(ctx context.Context, opts Options) ([]Row, error) {
	codes := opts.Codes
	if len(codes) == 0 {
		var err error
		codes, err = r.benefits.ListCodesWithBenefits(ctx)
		if err != nil {
			return nil, fmt.Errorf("list codes: %w", err)
		}
	}

	rows := make([]Row, 0, len(codes))
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Row(ctx, code)
		if err != nil {
			return nil, err
		}
		if keep(row, opts) {
			rows = append(rows, row)
		}
	}

	Sort(rows)
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	r.logger.Debug().Int("codes", len(codes)).Int("rows", len(rows)).Msg("ranked")
	return rows, nil
}

// Sort orders rows by total yield descending, then code ascending.
func Sort(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := b.Yield.TotalYieldPct.Cmp(a.Yield.TotalYieldPct); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
}

func keep(row Row, opts Options) bool {
	if !row.HasPrice && !opts.IncludeUnpriced {
		return false
	}
	if !opts.MinTotalYield.IsZero() && row.Yield.TotalYieldPct.LessThan(opts.MinTotalYield) {
		return false
	}
	if opts.Month != 0 && !slices.Contains(row.Months, opts.Month) {
		return false
	}
	if opts.Category != "" && !slices.Contains(row.Categories, opts.Category) {
		return false
	}
	return true
}

func describe(records []benefit.Record) ([]benefit.Category, []int, bool) {
	var categories []benefit.Category
	var months []int
	longTerm := false
	for _, rec := range records {
		if !slices.Contains(categories, rec.Category) {
			categories = append(categories, rec.Category)
		}
		if !slices.Contains(months, rec.EligibilityMonth) {
			months = append(months, rec.EligibilityMonth)
		}
		longTerm = longTerm || rec.HasLongTermHolding
	}
	slices.Sort(months)
	return categories, months, longTerm
}
