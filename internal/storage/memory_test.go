package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/perr"
)

func record(code, desc string, value int) benefit.Record {
	return benefit.Record{
		Code:             code,
		Category:         benefit.CategoryGiftCard,
		Description:      desc,
		MonetaryValue:    value,
		MinShares:        100,
		EligibilityMonth: 3,
	}
}

func TestMemoryReplaceNotMerge(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	first := []benefit.Record{record("7203", "QUOカード 500円", 500), record("7203", "割引券", 1000)}
	if err := m.ReplaceAll(ctx, "7203", first); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	second := []benefit.Record{record("7203", "QUOカード 1,000円", 1000)}
	if err := m.ReplaceAll(ctx, "7203", second); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}

	got, _ := m.ListBenefits(ctx, "7203")
	if len(got) != 1 || got[0].Description != "QUOカード 1,000円" {
		t.Fatalf("应只保留第二次的记录, 实际 %+v", got)
	}

	if err := m.ReplaceAll(ctx, "7203", nil); err != nil {
		t.Fatalf("空集合替换失败: %v", err)
	}
	codes, _ := m.ListCodesWithBenefits(ctx)
	if len(codes) != 0 {
		t.Fatalf("空集合替换后不应再有代码: %v", codes)
	}
}

func TestMemoryReplaceRejectsInvalidKeepsOld(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.ReplaceAll(ctx, "1301", []benefit.Record{record("1301", "お米", 2000)}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	bad := record("1301", "お米", 2000)
	bad.EligibilityMonth = 0
	err := m.ReplaceAll(ctx, "1301", []benefit.Record{record("1301", "新米", 2000), bad})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("非法记录应返回校验错误: %v", err)
	}
	err = m.ReplaceAll(ctx, "1301", []benefit.Record{record("9999", "x", 1)})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("代码不一致应返回参数错误: %v", err)
	}

	got, _ := m.ListBenefits(ctx, "1301")
	if len(got) != 1 || got[0].Description != "お米" {
		t.Fatalf("失败的替换不应改变已有数据: %+v", got)
	}
}

func TestMemoryPriceHistoryOrdered(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	for _, d := range []int{2, 0, 1, 1} {
		sample := PriceSample{Code: "7203", Price: decimal.NewFromInt(int64(2500 + d)), SampledAt: base.AddDate(0, 0, d)}
		if err := m.AppendPriceSample(ctx, sample); err != nil {
			t.Fatalf("追加价格失败: %v", err)
		}
	}

	hist, _ := m.ListPriceHistory(ctx, "7203", base.AddDate(0, 0, 1))
	if len(hist) != 2 || !hist[0].SampledAt.Before(hist[1].SampledAt) {
		t.Fatalf("历史应按时间升序且按 since 过滤: %+v", hist)
	}
	if got := Prices(hist); got[0] != 2501 || got[1] != 2502 {
		t.Fatalf("价格序列不正确: %v", got)
	}

	latest, ok, _ := m.LatestPriceSample(ctx, "7203")
	if !ok || !latest.Price.Equal(decimal.NewFromInt(2502)) {
		t.Fatalf("最新价格不正确: %+v", latest)
	}
	if _, ok, _ := m.LatestPriceSample(ctx, "0000"); ok {
		t.Fatal("无数据时不应返回价格")
	}
}

func TestMemoryAdvisoryLock(t *testing.T) {
	m := NewMemoryStore()
	unlock, ok, _ := m.TryAdvisoryLock(context.Background(), 42)
	if !ok {
		t.Fatal("首次加锁应成功")
	}
	if _, ok, _ := m.TryAdvisoryLock(context.Background(), 42); ok {
		t.Fatal("重复加锁应失败")
	}
	unlock()
	if _, ok, _ := m.TryAdvisoryLock(context.Background(), 42); !ok {
		t.Fatal("释放后应能再次加锁")
	}
}

func TestStoreNotConfigured(t *testing.T) {
	var s *Store
	if err := s.ReplaceAll(context.Background(), "7203", nil); err != ErrNotConfigured {
		t.Fatalf("未配置连接池应返回 ErrNotConfigured, 实际 %v", err)
	}
}
