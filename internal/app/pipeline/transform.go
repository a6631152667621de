package pipeline

import (
	"errors"
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

var ErrOutOfRange = errors.New("pipeline: bpm out of range")

type NoopTransformer struct{}

func (NoopTransformer) Transform(s domain.Sample) (domain.Sample, error) { return s, nil }
func (NoopTransformer) Name() string                                     { return "noop" }

// BoundsTransformer rejects samples whose bpm falls outside [Min, Max]
// before they reach history. A zero bound is not enforced.
type BoundsTransformer struct {
	Min float64
	Max float64
}

func (b BoundsTransformer) Transform(s domain.Sample) (domain.Sample, error) {
	if b.Min != 0 && s.BPM < b.Min {
		return s, fmt.Errorf("%w: %g < %g", ErrOutOfRange, s.BPM, b.Min)
	}
	if b.Max != 0 && s.BPM > b.Max {
		return s, fmt.Errorf("%w: %g > %g", ErrOutOfRange, s.BPM, b.Max)
	}
	return s, nil
}

func (b BoundsTransformer) Name() string { return "bpm-bounds" }

// NewTransformer returns the bounds filter when either bound is set.
func NewTransformer(minBPM, maxBPM float64) ports.Transformer {
	if minBPM == 0 && maxBPM == 0 {
		return NoopTransformer{}
	}
	return BoundsTransformer{Min: minBPM, Max: maxBPM}
}

var (
	_ ports.Transformer = NoopTransformer{}
	_ ports.Transformer = BoundsTransformer{}
)
