package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// MemoryStore keeps history in process, ordered by time. It backs the
// runtime when no database is configured and mirrors the Timescale conflict
// rule: a second sample with the same time is ignored. Nothing is ever
// evicted, so memory grows with every stored sample; use it for tests and
// short sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	samples []domain.Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) WriteBatch(samples []domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		i := m.search(s.Time)
		if i < len(m.samples) && m.samples[i].Time.Equal(s.Time) {
			continue
		}
		// in-order arrivals land at the end, so this is usually a plain append
		m.samples = slices.Insert(m.samples, i, s)
	}
	return nil
}

func (m *MemoryStore) Range(_ context.Context, from, to time.Time) ([]domain.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo := m.search(from)
	hi := sort.Search(len(m.samples), func(i int) bool { return m.samples[i].Time.After(to) })
	if hi < lo {
		hi = lo
	}
	return append([]domain.Sample{}, m.samples[lo:hi]...), nil
}

// search returns the index of the first sample not before t.
func (m *MemoryStore) search(t time.Time) int {
	return sort.Search(len(m.samples), func(i int) bool { return !m.samples[i].Time.Before(t) })
}

func (m *MemoryStore) Stats(ctx context.Context, from, to time.Time) (domain.Stats, error) {
	samples, err := m.Range(ctx, from, to)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.ComputeStats(samples), nil
}

var (
	_ ports.Sink         = (*MemoryStore)(nil)
	_ ports.HistoryStore = (*MemoryStore)(nil)
)
