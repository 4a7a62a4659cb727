package fetcher

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/perr"
)

// Selectors locate benefit rows and their columns on a page. Column selectors are
// relative to the row; an empty Description selector uses the whole row text.
type Selectors struct {
	Row           string
	Description   string
	Shares        string
	Amount        string
	Month         string
	NotFound      string
	Price         string
	DividendYield string
}

// HTMLOptions parameterise the page extractor.
type HTMLOptions struct {
	// URLTemplate contains {code}, e.g. https://example.jp/yutai/{code}.
	URLTemplate string
	Selectors   Selectors
}

// HTMLExtractor scrapes benefit rows from HTML pages with CSS selectors.
type HTMLExtractor struct {
	opts   HTMLOptions
	logger zerolog.Logger
}

var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor constructs an extractor.
func NewHTMLExtractor(opts HTMLOptions, logger zerolog.Logger) *HTMLExtractor {
	if opts.Selectors.Row == "" {
		opts.Selectors.Row = "table.benefit tr"
	}
	return &HTMLExtractor{
		opts:   opts,
		logger: logger.With().Str("component", "page_extractor").Logger(),
	}
}

// URL returns the page address for code.
func (e *HTMLExtractor) URL(code string) string {
	return strings.ReplaceAll(e.opts.URLTemplate, "{code}", code)
}

// Extract fetches and parses the benefit page of code. Pages that cannot be parsed
// or carry no rows are reported as no_benefit.
func (e *HTMLExtractor) Extract(ctx context.Context, s Session, code string) (Extraction, error) {
	if strings.TrimSpace(code) == "" {
		return Extraction{}, perr.New(perr.ErrorCodeInvalidArgument, "empty code")
	}
	if e.opts.URLTemplate == "" {
		return Extraction{}, perr.New(perr.ErrorCodeInvalidArgument, "source url template not configured")
	}

	body, err := s.Get(ctx, e.URL(code))
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return Extraction{Status: StatusNotFound}, nil
		}
		return Extraction{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn().Err(err).Str("code", code).Msg("unparseable page")
		return Extraction{Status: StatusNoBenefit}, nil
	}
	return e.parse(doc, code), nil
}

func (e *HTMLExtractor) parse(doc *goquery.Document, code string) Extraction {
	sel := e.opts.Selectors
	if sel.NotFound != "" && doc.Find(sel.NotFound).Length() > 0 {
		return Extraction{Status: StatusNotFound}
	}

	var rows []benefit.RawRow
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		desc := cellText(row, sel.Description)
		if desc == "" {
			return
		}
		rows = append(rows, benefit.RawRow{
			Code:          code,
			Description:   desc,
			RawShareText:  cellText(row, sel.Shares),
			RawAmountText: cellText(row, sel.Amount),
			RawMonthText:  cellText(row, sel.Month),
		})
	})

	ext := Extraction{Status: StatusOK, Rows: rows, Price: e.priceHint(doc)}
	if len(rows) == 0 {
		ext.Status = StatusNoBenefit
	}
	return ext
}

func (e *HTMLExtractor) priceHint(doc *goquery.Document) *PriceHint {
	sel := e.opts.Selectors
	if sel.Price == "" {
		return nil
	}
	price, err := parseNumber(doc.Find(sel.Price).First().Text())
	if err != nil || !price.IsPositive() {
		return nil
	}
	hint := &PriceHint{Price: price}
	if sel.DividendYield != "" {
		if y, err := parseNumber(doc.Find(sel.DividendYield).First().Text()); err == nil {
			hint.DividendYieldPct = y
			hint.AnnualDividend = price.Mul(y).Div(decimal.NewFromInt(100)).Round(2)
		}
	}
	return hint
}

// cellText returns the collapsed text of the first match of selector under row,
// or of row itself when selector is empty.
func cellText(row *goquery.Selection, selector string) string {
	target := row
	if selector != "" {
		target = row.Find(selector).First()
	}
	return strings.Join(strings.Fields(target.Text()), " ")
}

var reNumber = regexp.MustCompile(`-?[0-9][0-9,]*(?:\.[0-9]+)?`)

var errNoNumber = errors.New("no number in text")

func parseNumber(text string) (decimal.Decimal, error) {
	m := reNumber.FindString(benefit.Fold(text))
	if m == "" {
		return decimal.Decimal{}, errNoNumber
	}
	return decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
}
