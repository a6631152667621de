package domain

import "errors"

// ErrInvalidCapacity is returned when a buffer is sized below one sample.
var ErrInvalidCapacity = errors.New("domain: buffer capacity must be > 0")

// SampleBuffer is a fixed-capacity ring holding the most recent samples in
// arrival order. It is not safe for concurrent use; the owner serializes
// access.
type SampleBuffer struct {
	items []Sample
	head  int // next write position
	size  int
}

func NewSampleBuffer(capacity int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &SampleBuffer{items: make([]Sample, capacity)}, nil
}

// Append adds s, evicting the oldest sample when the buffer is full.
func (b *SampleBuffer) Append(s Sample) {
	b.items[b.head] = s
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Samples returns a copy of the buffered samples, oldest first.
func (b *SampleBuffer) Samples() []Sample {
	out := make([]Sample, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}

func (b *SampleBuffer) Len() int { return b.size }

func (b *SampleBuffer) Cap() int { return len(b.items) }
