package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"yutai-ranker/internal/benefit"
)

// MemoryStore keeps everything in process. Used for dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	benefits map[string][]benefit.Record
	prices   map[string][]PriceSample
	locks    map[int64]bool
}

var (
	_ BenefitStore     = (*MemoryStore)(nil)
	_ PriceSampleStore = (*MemoryStore)(nil)
	_ AdvisoryLocker   = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		benefits: make(map[string][]benefit.Record),
		prices:   make(map[string][]PriceSample),
		locks:    make(map[int64]bool),
	}
}

// ReplaceAll swaps the record set of code. An empty set removes the code.
func (m *MemoryStore) ReplaceAll(ctx context.Context, code string, records []benefit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecords(code, records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) == 0 {
		delete(m.benefits, code)
		return nil
	}
	m.benefits[code] = append([]benefit.Record(nil), records...)
	return nil
}

func (m *MemoryStore) ListBenefits(_ context.Context, code string) ([]benefit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]benefit.Record{}, m.benefits[code]...), nil
}

func (m *MemoryStore) ListCodesWithBenefits(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make([]string, 0, len(m.benefits))
	for code := range m.benefits {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// AppendPriceSample inserts in timestamp order; a duplicate timestamp is ignored.
func (m *MemoryStore) AppendPriceSample(_ context.Context, sample PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	series := m.prices[sample.Code]
	i := sort.Search(len(series), func(i int) bool { return !series[i].SampledAt.Before(sample.SampledAt) })
	if i < len(series) && series[i].SampledAt.Equal(sample.SampledAt) {
		return nil
	}
	series = append(series, PriceSample{})
	copy(series[i+1:], series[i:])
	series[i] = sample
	m.prices[sample.Code] = series
	return nil
}

func (m *MemoryStore) ListPriceHistory(_ context.Context, code string, since time.Time) ([]PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PriceSample, 0)
	for _, s := range m.prices[code] {
		if !s.SampledAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestPriceSample(_ context.Context, code string) (PriceSample, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.prices[code]
	if len(series) == 0 {
		return PriceSample{}, false, nil
	}
	return series[len(series)-1], true, nil
}

// TryAdvisoryLock emulates a process-local advisory lock.
func (m *MemoryStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}, true, nil
}
