package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/perr"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	lockCodeSQL = `SELECT pg_advisory_xact_lock(hashtext($1));`

	deleteBenefitsSQL = `DELETE FROM benefits WHERE code = $1;`

	listBenefitsSQL = `SELECT
        code,
        category,
        description,
        monetary_value,
        min_shares,
        eligibility_month,
        has_long_term_holding,
        long_term_months
    FROM benefits
    WHERE code = $1
    ORDER BY position;`

	listCodesWithBenefitsSQL = `SELECT DISTINCT code FROM benefits ORDER BY code;`

	insertPriceSampleSQL = `INSERT INTO price_samples (
        code,
        sampled_at,
        price,
        dividend_yield_pct,
        annual_dividend
    ) VALUES (
        $1,$2,$3::numeric,$4::numeric,$5::numeric
    )
    ON CONFLICT (code, sampled_at) DO NOTHING;`

	listPriceHistorySQL = `SELECT
        code,
        sampled_at,
        price::text,
        dividend_yield_pct::text,
        annual_dividend::text
    FROM price_samples
    WHERE code = $1
      AND sampled_at >= $2
    ORDER BY sampled_at;`

	latestPriceSampleSQL = `SELECT
        code,
        sampled_at,
        price::text,
        dividend_yield_pct::text,
        annual_dividend::text
    FROM price_samples
    WHERE code = $1
    ORDER BY sampled_at DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

var benefitColumns = []string{
	"code",
	"position",
	"category",
	"description",
	"monetary_value",
	"min_shares",
	"eligibility_month",
	"has_long_term_holding",
	"long_term_months",
}

// BenefitStore persists normalized benefit records. ReplaceAll swaps the whole set
// of one code atomically: on error the previous set is left untouched.
type BenefitStore interface {
	ReplaceAll(ctx context.Context, code string, records []benefit.Record) error
	ListBenefits(ctx context.Context, code string) ([]benefit.Record, error)
	ListCodesWithBenefits(ctx context.Context) ([]string, error)
}

// PriceSampleStore persists the append-only price history.
type PriceSampleStore interface {
	AppendPriceSample(ctx context.Context, sample PriceSample) error
	ListPriceHistory(ctx context.Context, code string, since time.Time) ([]PriceSample, error)
	LatestPriceSample(ctx context.Context, code string) (PriceSample, bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL implementation of every store interface.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ BenefitStore     = (*Store)(nil)
	_ PriceSampleStore = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "ping database")
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ReplaceAll deletes the stored records of code and copies in the new set inside
// one transaction. Concurrent replaces of the same code are serialized.
func (s *Store) ReplaceAll(ctx context.Context, code string, records []benefit.Record) (err error) {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if err := checkRecords(code, records); err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "begin replace for %s", code)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, lockCodeSQL, code); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "lock benefits of %s", code)
	}
	if _, err = tx.Exec(ctx, deleteBenefitsSQL, code); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "delete benefits of %s", code)
	}
	if len(records) > 0 {
		src := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			var longTerm any
			if r.LongTermMonths != nil {
				longTerm = int32(*r.LongTermMonths)
			}
			return []any{
				r.Code,
				int32(i),
				string(r.Category),
				r.Description,
				int32(r.MonetaryValue),
				int32(r.MinShares),
				int16(r.EligibilityMonth),
				r.HasLongTermHolding,
				longTerm,
			}, nil
		})
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{"benefits"}, benefitColumns, src); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeDB, "copy benefits of %s", code)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "commit benefits of %s", code)
	}
	return nil
}

func checkRecords(code string, records []benefit.Record) error {
	if code == "" {
		return perr.New(perr.ErrorCodeInvalidArgument, "empty code")
	}
	for _, r := range records {
		if r.Code != code {
			return perr.Newf(perr.ErrorCodeInvalidArgument, "record for %s in replace of %s", r.Code, code)
		}
	}
	return benefit.ValidateAll(records)
}

// ListBenefits returns the stored records of code in extraction order.
func (s *Store) ListBenefits(ctx context.Context, code string) ([]benefit.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBenefitsSQL, code)
	if queryErr != nil {
		return nil, fmt.Errorf("list benefits: %w", queryErr)
	}
	defer rows.Close()

	records := make([]benefit.Record, 0)
	for rows.Next() {
		var (
			rec      benefit.Record
			category string
			month    int16
			longTerm sql.NullInt32
			value    int32
			shares   int32
		)
		if err := rows.Scan(
			&rec.Code,
			&category,
			&rec.Description,
			&value,
			&shares,
			&month,
			&rec.HasLongTermHolding,
			&longTerm,
		); err != nil {
			return nil, err
		}
		rec.Category = benefit.Category(category)
		rec.MonetaryValue = int(value)
		rec.MinShares = int(shares)
		rec.EligibilityMonth = int(month)
		if longTerm.Valid {
			months := int(longTerm.Int32)
			rec.LongTermMonths = &months
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListCodesWithBenefits lists codes that currently have at least one record.
func (s *Store) ListCodesWithBenefits(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listCodesWithBenefitsSQL)
	if err != nil {
		return nil, fmt.Errorf("list codes with benefits: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect codes: %w", err)
	}
	return codes, nil
}

// AppendPriceSample stores a price observation; a duplicate timestamp is ignored.
func (s *Store) AppendPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if !sample.Price.IsPositive() {
		return perr.Newf(perr.ErrorCodeValidation, "price sample for %s must be positive", sample.Code)
	}
	_, execErr := pool.Exec(ctx, insertPriceSampleSQL,
		sample.Code,
		sample.SampledAt,
		sample.Price.String(),
		sample.DividendYieldPct.String(),
		sample.AnnualDividend.String(),
	)
	if execErr != nil {
		return perr.Wrapf(execErr, perr.ErrorCodeDB, "append price sample for %s", sample.Code)
	}
	return nil
}

// ListPriceHistory returns samples of code taken at or after since, oldest first.
func (s *Store) ListPriceHistory(ctx context.Context, code string, since time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPriceHistorySQL, code, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list price history: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// LatestPriceSample returns the newest sample of code, if any.
func (s *Store) LatestPriceSample(ctx context.Context, code string) (PriceSample, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, false, err
	}
	sample, err := scanPriceSample(pool.QueryRow(ctx, latestPriceSampleSQL, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceSample{}, false, nil
	}
	if err != nil {
		return PriceSample{}, false, fmt.Errorf("latest price sample: %w", err)
	}
	return sample, true, nil
}

func scanPriceSample(row pgx.Row) (PriceSample, error) {
	var (
		sample      PriceSample
		priceStr    string
		yieldStr    string
		dividendStr string
	)
	if err := row.Scan(&sample.Code, &sample.SampledAt, &priceStr, &yieldStr, &dividendStr); err != nil {
		return PriceSample{}, err
	}

	var err error
	if sample.Price, err = decimal.NewFromString(priceStr); err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	if sample.DividendYieldPct, err = decimal.NewFromString(yieldStr); err != nil {
		return PriceSample{}, fmt.Errorf("parse dividend yield: %w", err)
	}
	if sample.AnnualDividend, err = decimal.NewFromString(dividendStr); err != nil {
		return PriceSample{}, fmt.Errorf("parse annual dividend: %w", err)
	}
	return sample, nil
}
