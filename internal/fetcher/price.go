package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yutai-ranker/internal/perr"
)

// PriceOptions parameterise the quote client.
type PriceOptions struct {
	// URLTemplate contains {code}, e.g. https://quotes.example.jp/v1/quote/{code}.
	URLTemplate string
}

// PriceClient reads JSON quotes. Numbers may be JSON numbers or strings.
type PriceClient struct {
	opts   PriceOptions
	logger zerolog.Logger
}

var _ PriceSource = (*PriceClient)(nil)

// NewPriceClient constructs a quote client.
func NewPriceClient(opts PriceOptions, logger zerolog.Logger) *PriceClient {
	return &PriceClient{
		opts:   opts,
		logger: logger.With().Str("component", "price_fetcher").Logger(),
	}
}

type quoteResponse struct {
	Code           string          `json:"code"`
	Price          decimal.Decimal `json:"price"`
	DividendYield  decimal.Decimal `json:"dividend_yield"`
	AnnualDividend decimal.Decimal `json:"annual_dividend"`
	Error          string          `json:"error"`
}

// FetchPrice retrieves the quote of code.
func (c *PriceClient) FetchPrice(ctx context.Context, s Session, code string) (PriceHint, error) {
	if strings.TrimSpace(code) == "" {
		return PriceHint{}, perr.New(perr.ErrorCodeInvalidArgument, "empty code")
	}
	if c.opts.URLTemplate == "" {
		return PriceHint{}, perr.New(perr.ErrorCodeInvalidArgument, "price url template not configured")
	}

	payload, err := s.Get(ctx, strings.ReplaceAll(c.opts.URLTemplate, "{code}", code))
	if err != nil {
		return PriceHint{}, err
	}

	var q quoteResponse
	if err := json.Unmarshal(payload, &q); err != nil {
		return PriceHint{}, fmt.Errorf("decode quote for %s: %w", code, err)
	}
	if q.Error != "" {
		return PriceHint{}, perr.Newf(perr.ErrorCodeNotFound, "quote for %s: %s", code, q.Error)
	}
	if !q.Price.IsPositive() {
		return PriceHint{}, perr.Newf(perr.ErrorCodeNotFound, "quote for %s has no price", code)
	}

	hint := PriceHint{
		Price:            q.Price,
		DividendYieldPct: q.DividendYield,
		AnnualDividend:   q.AnnualDividend,
	}
	switch {
	case hint.DividendYieldPct.IsZero() && hint.AnnualDividend.IsPositive():
		hint.DividendYieldPct = hint.AnnualDividend.Div(hint.Price).Mul(decimal.NewFromInt(100)).Round(2)
	case hint.AnnualDividend.IsZero() && hint.DividendYieldPct.IsPositive():
		hint.AnnualDividend = hint.Price.Mul(hint.DividendYieldPct).Div(decimal.NewFromInt(100)).Round(2)
	}
	return hint, nil
}

// PriceExtractor adapts a PriceSource to the Extractor interface so price
// collection runs through the same orchestrator as benefit scraping.
type PriceExtractor struct {
	Source PriceSource
}

var _ Extractor = PriceExtractor{}

// Extract returns an ok extraction carrying only a price.
func (p PriceExtractor) Extract(ctx context.Context, s Session, code string) (Extraction, error) {
	hint, err := p.Source.FetchPrice(ctx, s, code)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return Extraction{Status: StatusNotFound}, nil
		}
		return Extraction{}, err
	}
	return Extraction{Status: StatusOK, Price: &hint}, nil
}
