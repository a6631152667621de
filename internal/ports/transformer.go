package ports

import "github.com/ghalamif/PulseFlow/internal/domain"

type Transformer interface {
	Transform(domain.Sample) (domain.Sample, error)
	Name() string
}
