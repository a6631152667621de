package ports

import "github.com/ghalamif/PulseFlow/internal/domain"

// Collector streams accepted samples into the ingestion pipeline.
type Collector interface {
	Start(out chan<- domain.Sample) error
	Stop() error
}
