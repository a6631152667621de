package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

const maxSinkRetryDelay = time.Second

// RunIngestPipeline drains the queue in batches, transforms each sample and
// writes the survivors to sink. A failed sink write is retried until it
// succeeds or ctx is done. The WAL commit mark only moves over a contiguous
// run of handled ids, so nothing still pending is ever committed or
// compacted away. Ids the queue rejected are read back from the WAL once
// the loop goes idle. It returns when ctx is done.
func RunIngestPipeline(ctx context.Context, wal ports.WAL, q ports.SampleQueue, tr ports.Transformer, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	sleep := idleSleep(pol)
	tracker := newCommitTracker(wal.Stats())
	dirty := false

	var (
		stalled   bool
		stalledAt ports.WALEntryID
	)

	for {
		if ctx.Err() != nil {
			return
		}

		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			latest := wal.Stats().LatestAppended
			switch {
			case latest <= tracker.committed:
				stalled = false
			case stalled && stalledAt == tracker.committed:
				// the gap outlived a full idle tick: nothing is in flight for it
				batch = readUnhandled(wal, tracker, latest, obs)
				stalled = false
			default:
				stalled, stalledAt = true, tracker.committed
			}
		}

		if len(batch) == 0 {
			if dirty {
				if err := wal.TruncateCommitted(); err != nil {
					obs.LogError("wal_truncate_failed", err)
				}
				dirty = false
			}
			if sleepCtx(ctx, sleep) != nil {
				return
			}
			continue
		}

		var (
			out = make([]domain.Sample, 0, len(batch))
			ids = make([]ports.WALEntryID, 0, len(batch))
		)
		for _, item := range batch {
			if tracker.seen(item.ID) {
				continue
			}
			s, err := tr.Transform(item.Sample)
			if err != nil {
				obs.RecordDLQ(item.ID, item.Sample, err)
				tracker.mark(item.ID)
				continue
			}
			out = append(out, s)
			ids = append(ids, item.ID)
		}

		if len(out) > 0 {
			if !writeWithRetry(ctx, sink, out, sleep, obs) {
				return
			}
			obs.IncCounter("pulse_samples_ingested_total", float64(len(out)))
			for _, id := range ids {
				tracker.mark(id)
			}
		}

		if upto, moved := tracker.advance(); moved {
			if err := wal.Commit(upto); err != nil {
				obs.LogError("wal_commit_failed", err)
				continue
			}
			dirty = true
		}
	}
}

// writeWithRetry reports false only when ctx ended before the sink took the batch.
func writeWithRetry(ctx context.Context, sink ports.Sink, out []domain.Sample, sleep time.Duration, obs ports.Observability) bool {
	delay := sleep
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := sink.WriteBatch(out)
		if err == nil {
			obs.ObserveLatency("ingest_sink_latency_seconds", time.Since(start).Seconds())
			return true
		}
		obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "batch", Value: len(out)},
			ports.Field{Key: "attempt", Value: attempt})
		if sleepCtx(ctx, delay) != nil {
			return false
		}
		delay = min(delay*2, maxSinkRetryDelay)
	}
}

// readUnhandled loads the WAL entries up to latest that the loop has not
// handled yet.
func readUnhandled(wal ports.WAL, tracker *commitTracker, latest ports.WALEntryID, obs ports.Observability) []ports.QueuedSample {
	var out []ports.QueuedSample
	err := wal.Iterate(tracker.committed+1, func(id ports.WALEntryID, s domain.Sample) error {
		if id <= latest && !tracker.seen(id) {
			out = append(out, ports.QueuedSample{ID: id, Sample: s})
		}
		return nil
	})
	if err != nil {
		obs.LogError("wal_backfill_failed", err)
		return nil
	}
	if len(out) > 0 {
		obs.LogInfo("wal_backfill",
			ports.Field{Key: "samples", Value: len(out)},
			ports.Field{Key: "from_id", Value: uint64(out[0].ID)})
	}
	return out
}

// commitTracker holds the ids handled above the commit mark and moves the
// mark forward only while the next id is among them.
type commitTracker struct {
	committed ports.WALEntryID
	handled   map[ports.WALEntryID]struct{}
}

func newCommitTracker(stats ports.WALStats) *commitTracker {
	t := &commitTracker{handled: make(map[ports.WALEntryID]struct{})}
	if stats.OldestUncommitted > 0 {
		t.committed = stats.OldestUncommitted - 1
	}
	return t
}

func (t *commitTracker) seen(id ports.WALEntryID) bool {
	if id <= t.committed {
		return true
	}
	_, ok := t.handled[id]
	return ok
}

func (t *commitTracker) mark(id ports.WALEntryID) {
	if id > t.committed {
		t.handled[id] = struct{}{}
	}
}

func (t *commitTracker) advance() (ports.WALEntryID, bool) {
	from := t.committed
	for {
		next := t.committed + 1
		if _, ok := t.handled[next]; !ok {
			break
		}
		delete(t.handled, next)
		t.committed = next
	}
	return t.committed, t.committed != from
}

// ReplayWAL re-enqueues every uncommitted WAL entry. It should run after
// the ingest loop has started so a replay larger than the queue can drain.
// Under a drop or reject queue policy it stops at the first refusal.
func ReplayWAL(ctx context.Context, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) (int, error) {
	stats := wal.Stats()
	if stats.LatestAppended == 0 {
		return 0, nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return 0, nil
	}

	// collect first: Iterate holds the WAL lock that Commit needs
	var pending []ports.QueuedSample
	if err := wal.Iterate(start, func(id ports.WALEntryID, s domain.Sample) error {
		pending = append(pending, ports.QueuedSample{ID: id, Sample: s})
		return nil
	}); err != nil {
		return 0, err
	}

	sleep := idleSleep(pol)
	var replayed int
	for _, item := range pending {
		for !q.Enqueue(item.ID, item.Sample) {
			switch pol.OnQueueFull {
			case "drop", "reject":
				// the rest stays in the WAL; the ingest loop reads it back when idle
				obs.LogWarn("wal_replay_queue_full",
					ports.Field{Key: "replayed", Value: replayed},
					ports.Field{Key: "pending", Value: len(pending) - replayed})
				return replayed, nil
			}
			if err := sleepCtx(ctx, sleep); err != nil {
				return replayed, err
			}
		}
		replayed++
	}
	if replayed > 0 {
		obs.LogInfo("wal_replay_complete",
			ports.Field{Key: "samples", Value: replayed},
			ports.Field{Key: "from_id", Value: uint64(start)})
	}
	return replayed, nil
}
