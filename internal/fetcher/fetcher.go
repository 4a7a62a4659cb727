package fetcher

import (
	"context"

	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
)

// Session is a worker's exclusive handle to the source. It is not shared between
// workers and must be closed by its owner.
type Session interface {
	// Get returns the body at url. Errors are coded with perr: not found, transient
	// (unavailable, too many requests) or session crashed.
	Get(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// SessionFactory opens sessions; the orchestrator calls it once per worker and again
// after a session crash.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Status is the outcome of one extraction.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNotFound  Status = "not_found"
	StatusNoBenefit Status = "no_benefit"
)

// PriceHint is a price observation taken alongside a page or from the price source.
type PriceHint struct {
	Price            decimal.Decimal `json:"price"`
	DividendYieldPct decimal.Decimal `json:"dividend_yield"`
	AnnualDividend   decimal.Decimal `json:"annual_dividend"`
}

// Extraction is what a page yielded for one identifier.
type Extraction struct {
	Status Status
	Rows   []benefit.RawRow
	Price  *PriceHint
}

// Extractor reads one identifier through a session.
type Extractor interface {
	Extract(ctx context.Context, s Session, code string) (Extraction, error)
}

// PriceSource fetches the current price of one identifier through a session.
type PriceSource interface {
	FetchPrice(ctx context.Context, s Session, code string) (PriceHint, error)
}
