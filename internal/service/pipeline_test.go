package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/checkpoint"
	"yutai-ranker/internal/fetcher"
	"yutai-ranker/internal/storage"
)

func newPipeline(store *storage.MemoryStore) *Pipeline {
	p := NewPipeline(benefit.NewNormalizer(nil, benefit.DefaultOptions()), store, store, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) }
	return p
}

func TestPipelineNormalizesDedupesAndReplaces(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newPipeline(store)

	ex := fetcher.Extraction{
		Status: fetcher.StatusOK,
		Rows: []benefit.RawRow{
			{Description: "クオカード 1,000円分"},
			{Description: "クオカード 1,000円分"},
			{Description: "なし"},
			{Description: "100株以上 食事券 3,000円 (6月末)"},
		},
		Price: &fetcher.PriceHint{Price: decimal.NewFromInt(2500), DividendYieldPct: decimal.RequireFromString("2.1")},
	}
	outcome, n, err := p.Handle(ctx, "7203", ex)
	if err != nil {
		t.Fatalf("处理失败: %v", err)
	}
	if outcome != checkpoint.OutcomeBenefitFound || n != 2 {
		t.Fatalf("应得到 2 条去重后的记录, 实际 %s/%d", outcome, n)
	}
	stored, _ := store.ListBenefits(ctx, "7203")
	if len(stored) != 2 || stored[0].Code != "7203" {
		t.Fatalf("存储内容不正确: %+v", stored)
	}
	if _, ok, _ := store.LatestPriceSample(ctx, "7203"); !ok {
		t.Fatal("页面价格应被记录")
	}
}

func TestPipelineNotFoundLeavesDataUntouched(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newPipeline(store)

	if _, _, err := p.Handle(ctx, "1301", fetcher.Extraction{Status: fetcher.StatusOK, Rows: []benefit.RawRow{{Description: "お米 5kg"}}}); err != nil {
		t.Fatalf("首次处理失败: %v", err)
	}
	outcome, _, err := p.Handle(ctx, "1301", fetcher.Extraction{Status: fetcher.StatusNotFound})
	if err != nil || outcome != checkpoint.OutcomeNotFound {
		t.Fatalf("not_found 应成功且不写入: %s %v", outcome, err)
	}
	if stored, _ := store.ListBenefits(ctx, "1301"); len(stored) != 1 {
		t.Fatalf("not_found 不应改动已有数据: %+v", stored)
	}

	outcome, _, err = p.Handle(ctx, "1301", fetcher.Extraction{Status: fetcher.StatusNoBenefit})
	if err != nil || outcome != checkpoint.OutcomeNoBenefit {
		t.Fatalf("no_benefit 处理不正确: %s %v", outcome, err)
	}
	if stored, _ := store.ListBenefits(ctx, "1301"); len(stored) != 0 {
		t.Fatalf("no_benefit 应替换为空集合: %+v", stored)
	}
}

func TestPipelineAllNoiseIsNoBenefit(t *testing.T) {
	p := newPipeline(storage.NewMemoryStore())
	outcome, n, err := p.Handle(context.Background(), "2702", fetcher.Extraction{Status: fetcher.StatusOK, Rows: []benefit.RawRow{{Description: "-"}}})
	if err != nil || outcome != checkpoint.OutcomeNoBenefit || n != 0 {
		t.Fatalf("全部为噪声时应视为无优待: %s %d %v", outcome, n, err)
	}
}

type failingStore struct{ *storage.MemoryStore }

func (failingStore) ReplaceAll(context.Context, string, []benefit.Record) error {
	return errors.New("connection refused")
}

func TestPipelinePropagatesStoreErrors(t *testing.T) {
	mem := storage.NewMemoryStore()
	p := NewPipeline(benefit.NewNormalizer(nil, benefit.Options{}), failingStore{mem}, mem, zerolog.Nop())
	_, _, err := p.Handle(context.Background(), "7203", fetcher.Extraction{Status: fetcher.StatusOK, Rows: []benefit.RawRow{{Description: "QUOカード"}}})
	if err == nil {
		t.Fatal("存储失败应返回错误")
	}
	if _, ok, _ := mem.LatestPriceSample(context.Background(), "7203"); ok {
		t.Fatal("存储失败时不应记录价格")
	}
}

func TestPriceRecorder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	at := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	r := NewPriceRecorder(store, at, zerolog.Nop())

	outcome, n, err := r.Handle(ctx, "7203", fetcher.Extraction{Status: fetcher.StatusOK, Price: &fetcher.PriceHint{Price: decimal.NewFromInt(2500)}})
	if err != nil || outcome != checkpoint.OutcomeBenefitFound || n != 1 {
		t.Fatalf("记录价格失败: %s %d %v", outcome, n, err)
	}
	latest, ok, _ := store.LatestPriceSample(ctx, "7203")
	if !ok || !latest.SampledAt.Equal(at) {
		t.Fatalf("价格时间戳应为运行时间: %+v", latest)
	}

	outcome, _, _ = r.Handle(ctx, "9999", fetcher.Extraction{Status: fetcher.StatusNotFound})
	if outcome != checkpoint.OutcomeNotFound {
		t.Fatalf("not_found 应原样返回: %s", outcome)
	}
	outcome, _, _ = r.Handle(ctx, "1301", fetcher.Extraction{Status: fetcher.StatusOK})
	if outcome != checkpoint.OutcomeNoBenefit {
		t.Fatalf("没有价格时应为 no_benefit: %s", outcome)
	}
}
