package queue

import (
	"testing"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

func bpm(v float64) domain.Sample {
	return domain.Sample{Time: time.UnixMilli(int64(v) * 1000).UTC(), BPM: v}
}

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	if !q.Enqueue(1, bpm(60)) || !q.Enqueue(2, bpm(61)) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Sample.BPM != 60 {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if got := q.DequeueBatch(5); got != nil {
		t.Fatalf("empty queue should return nil, got %+v", got)
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	if !q.Enqueue(1, bpm(70)) || !q.Enqueue(2, bpm(71)) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, bpm(72)) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, bpm(73)) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}

func TestMemQueueWrapsAround(t *testing.T) {
	q := NewMemQueue(3)
	id := uint64(0)
	for round := 0; round < 5; round++ {
		for i := 0; i < 2; i++ {
			id++
			q.Enqueue(ports.WALEntryID(id), bpm(float64(id)))
		}
		batch := q.DequeueBatch(0)
		if len(batch) != 2 || uint64(batch[0].ID) != id-1 || uint64(batch[1].ID) != id {
			t.Fatalf("round %d: unexpected batch %+v", round, batch)
		}
	}
}

func TestMemQueueMinimumCapacity(t *testing.T) {
	q := NewMemQueue(0)
	if q.Cap() != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d", q.Cap())
	}
}
