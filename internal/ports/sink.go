package ports

import (
	"context"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

type Sink interface {
	WriteBatch(samples []domain.Sample) error
	Name() string
}

// HistoryStore answers range and aggregate queries over persisted samples.
type HistoryStore interface {
	Range(ctx context.Context, from, to time.Time) ([]domain.Sample, error)
	Stats(ctx context.Context, from, to time.Time) (domain.Stats, error)
}
