//go:build integration_pg

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"yutai-ranker/internal/benefit"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "yutai",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/yutai?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openMigratedStore(t *testing.T, ctx context.Context, dsn string) *Store {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ddl, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return NewStore(pool)
}

func TestReplaceAllIntegration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	store := openMigratedStore(t, ctx, dsn)
	defer store.Close()

	months := 36
	first := []benefit.Record{
		{Code: "7203", Category: benefit.CategoryGiftCard, Description: "QUOカード 500円", MonetaryValue: 500, MinShares: 100, EligibilityMonth: 3},
		{Code: "7203", Category: benefit.CategoryDiscount, Description: "割引券", MonetaryValue: 1000, MinShares: 100, EligibilityMonth: 9,
			HasLongTermHolding: true, LongTermMonths: &months},
	}
	if err := store.ReplaceAll(ctx, "7203", first); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	got, err := store.ListBenefits(ctx, "7203")
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 records, got %d (%v)", len(got), err)
	}
	if got[1].LongTermMonths == nil || *got[1].LongTermMonths != 36 {
		t.Fatalf("long term months not round-tripped: %+v", got[1])
	}

	second := []benefit.Record{
		{Code: "7203", Category: benefit.CategoryGiftCard, Description: "QUOカード 1,000円", MonetaryValue: 1000, MinShares: 100, EligibilityMonth: 3},
	}
	if err := store.ReplaceAll(ctx, "7203", second); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	got, _ = store.ListBenefits(ctx, "7203")
	if len(got) != 1 || got[0].Description != "QUOカード 1,000円" {
		t.Fatalf("replace merged instead of replacing: %+v", got)
	}

	// a rejected set leaves the stored one intact
	bad := second[0]
	bad.MinShares = 0
	if err := store.ReplaceAll(ctx, "7203", []benefit.Record{bad}); err == nil {
		t.Fatal("invalid record accepted")
	}
	got, _ = store.ListBenefits(ctx, "7203")
	if len(got) != 1 {
		t.Fatalf("failed replace changed data: %+v", got)
	}

	codes, err := store.ListCodesWithBenefits(ctx)
	if err != nil || len(codes) != 1 || codes[0] != "7203" {
		t.Fatalf("codes with benefits: %v %v", codes, err)
	}
}

func TestPriceSamplesIntegration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	store := openMigratedStore(t, ctx, dsn)
	defer store.Close()

	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.AppendPriceSample(ctx, PriceSample{
			Code:             "1301",
			Price:            decimal.NewFromInt(int64(4000 + i)),
			DividendYieldPct: decimal.RequireFromString("2.5"),
			AnnualDividend:   decimal.NewFromInt(100),
			SampledAt:        base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("append sample: %v", err)
		}
	}

	hist, err := store.ListPriceHistory(ctx, "1301", base.AddDate(0, 0, 1))
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %d %v", len(hist), err)
	}
	latest, ok, err := store.LatestPriceSample(ctx, "1301")
	if err != nil || !ok || !latest.Price.Equal(decimal.NewFromInt(4002)) {
		t.Fatalf("latest: %+v %v %v", latest, ok, err)
	}

	unlock, acquired, err := store.TryAdvisoryLock(ctx, 7)
	if err != nil || !acquired {
		t.Fatalf("advisory lock: %v %v", acquired, err)
	}
	unlock()
}
