package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/checkpoint"
	"yutai-ranker/internal/fetcher"
	"yutai-ranker/internal/orchestrator"
	"yutai-ranker/internal/perr"
	"yutai-ranker/internal/storage"
)

// Pipeline is the benefit ingest sink: normalize, dedupe, replace the stored set,
// then record the price seen on the page if any.
type Pipeline struct {
	normalizer *benefit.Normalizer
	benefits   storage.BenefitStore
	prices     storage.PriceSampleStore
	logger     zerolog.Logger
	now        func() time.Time
}

var _ orchestrator.Sink = (*Pipeline)(nil)

// NewPipeline builds the sink. prices may be nil.
func NewPipeline(normalizer *benefit.Normalizer, benefits storage.BenefitStore, prices storage.PriceSampleStore, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		benefits:   benefits,
		prices:     prices,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}
}

// Handle persists one extraction. Not found leaves stored data untouched; no
// benefit replaces it with the empty set.
func (p *Pipeline) Handle(ctx context.Context, code string, ex fetcher.Extraction) (checkpoint.Outcome, int, error) {
	switch ex.Status {
	case fetcher.StatusNotFound:
		return checkpoint.OutcomeNotFound, 0, nil
	case fetcher.StatusNoBenefit, fetcher.StatusOK:
	default:
		return 0, 0, perr.Newf(perr.ErrorCodeInvalidArgument, "unknown extraction status %q", ex.Status)
	}

	var records []benefit.Record
	if ex.Status == fetcher.StatusOK {
		rows := make([]benefit.RawRow, len(ex.Rows))
		for i, row := range ex.Rows {
			row.Code = code
			rows[i] = row
		}
		records = benefit.Dedupe(p.normalizer.NormalizeAll(rows))
	}

	if err := p.benefits.ReplaceAll(ctx, code, records); err != nil {
		return 0, 0, err
	}
	p.recordPrice(ctx, code, ex.Price)

	if len(records) == 0 {
		return checkpoint.OutcomeNoBenefit, 0, nil
	}
	return checkpoint.OutcomeBenefitFound, len(records), nil
}

// recordPrice is best effort; the benefit set is already stored.
func (p *Pipeline) recordPrice(ctx context.Context, code string, hint *fetcher.PriceHint) {
	if p.prices == nil || hint == nil || !hint.Price.IsPositive() {
		return
	}
	sample := sampleFromHint(code, *hint, p.now())
	if err := p.prices.AppendPriceSample(ctx, sample); err != nil {
		p.logger.Warn().Err(err).Str("code", code).Msg("failed to record page price")
	}
}

func sampleFromHint(code string, hint fetcher.PriceHint, at time.Time) storage.PriceSample {
	return storage.PriceSample{
		Code:             code,
		Price:            hint.Price,
		DividendYieldPct: hint.DividendYieldPct,
		AnnualDividend:   hint.AnnualDividend,
		SampledAt:        at.UTC().Truncate(time.Second),
	}
}

// PriceRecorder is the sink of the price collection run.
type PriceRecorder struct {
	store  storage.PriceSampleStore
	at     time.Time
	logger zerolog.Logger
}

var _ orchestrator.Sink = (*PriceRecorder)(nil)

// NewPriceRecorder stamps every sample with at, or with the time of the write when at is zero.
func NewPriceRecorder(store storage.PriceSampleStore, at time.Time, logger zerolog.Logger) *PriceRecorder {
	return &PriceRecorder{
		store:  store,
		at:     at,
		logger: logger.With().Str("component", "price_recorder").Logger(),
	}
}

// Handle appends the quote. An identifier with a quote counts as benefit found so
// the price checkpoint keeps the same outcome vocabulary as the scrape checkpoint.
func (r *PriceRecorder) Handle(ctx context.Context, code string, ex fetcher.Extraction) (checkpoint.Outcome, int, error) {
	if ex.Status == fetcher.StatusNotFound {
		return checkpoint.OutcomeNotFound, 0, nil
	}
	if ex.Price == nil || !ex.Price.Price.IsPositive() {
		return checkpoint.OutcomeNoBenefit, 0, nil
	}
	at := r.at
	if at.IsZero() {
		at = time.Now()
	}
	if err := r.store.AppendPriceSample(ctx, sampleFromHint(code, *ex.Price, at)); err != nil {
		return 0, 0, err
	}
	return checkpoint.OutcomeBenefitFound, 1, nil
}
