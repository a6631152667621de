package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewSampleBufferRejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		if _, err := NewSampleBuffer(c); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", c, err)
		}
	}
}

func TestSampleBufferKeepsMostRecent(t *testing.T) {
	b, err := NewSampleBuffer(3)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}

	base := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		b.Append(Sample{Time: base.Add(time.Duration(i) * time.Millisecond), BPM: float64(i * 10)})
	}

	got := bpms(b.Samples())
	want := []float64{30, 40, 50}
	if !equalFloats(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if b.Len() != 3 || b.Cap() != 3 {
		t.Fatalf("expected len=cap=3, got len=%d cap=%d", b.Len(), b.Cap())
	}
}

func TestSampleBufferBelowCapacity(t *testing.T) {
	b, _ := NewSampleBuffer(5)
	if len(b.Samples()) != 0 {
		t.Fatalf("expected empty buffer")
	}

	b.Append(Sample{BPM: 1})
	b.Append(Sample{BPM: 2})
	if got := bpms(b.Samples()); !equalFloats(got, []float64{1, 2}) {
		t.Fatalf("unexpected contents %v", got)
	}
}

func TestSampleBufferSnapshotIsCopy(t *testing.T) {
	b, _ := NewSampleBuffer(2)
	b.Append(Sample{BPM: 1})

	snap := b.Samples()
	snap[0].BPM = 99

	if got := b.Samples()[0].BPM; got != 1 {
		t.Fatalf("buffer mutated through snapshot: %f", got)
	}
}

func TestSampleBufferLastMinNCAcrossSizes(t *testing.T) {
	for capacity := 1; capacity <= 4; capacity++ {
		for n := 0; n <= 9; n++ {
			b, _ := NewSampleBuffer(capacity)
			for i := 0; i < n; i++ {
				b.Append(Sample{BPM: float64(i)})
			}

			keep := n
			if capacity < keep {
				keep = capacity
			}
			want := make([]float64, 0, keep)
			for i := n - keep; i < n; i++ {
				want = append(want, float64(i))
			}
			if got := bpms(b.Samples()); !equalFloats(got, want) {
				t.Fatalf("cap=%d n=%d: expected %v, got %v", capacity, n, want, got)
			}
		}
	}
}

func bpms(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.BPM
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
