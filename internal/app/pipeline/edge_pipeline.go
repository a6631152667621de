package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

var (
	ErrWALFull   = errors.New("pipeline: wal full")
	ErrQueueFull = errors.New("pipeline: queue full")
)

// RunEdgePipeline starts the collector and moves every sample it emits into
// the WAL and the ingest queue until ctx is done.
func RunEdgePipeline(ctx context.Context, col ports.Collector, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	buf := pol.MaxQueueLen
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan domain.Sample, buf)

	if err := col.Start(ch); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				if err := admit(ctx, wal, q, pol, obs, s); err != nil && errors.Is(err, ErrQueueFull) {
					obs.IncCounter("pulse_queue_dropped_total", 1)
				}
			}
		}
	}()

	return nil
}

// Publish admits one externally supplied sample through the same WAL and
// queue policies the collector path uses.
func Publish(ctx context.Context, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability, s domain.Sample) error {
	err := admit(ctx, wal, q, pol, obs, s)
	if errors.Is(err, ErrQueueFull) {
		obs.IncCounter("pulse_queue_dropped_total", 1)
	}
	return err
}

func admit(ctx context.Context, wal ports.WAL, q ports.SampleQueue, pol ports.Policy, obs ports.Observability, s domain.Sample) error {
	if err := waitForWALCapacity(ctx, wal, pol, obs); err != nil {
		return err
	}

	id, err := wal.Append(s)
	if err != nil {
		obs.LogCritical("wal_append_failed", err)
		return fmt.Errorf("wal append: %w", err)
	}

	// a rejected sample stays in the WAL; the ingest loop reads it back
	return enqueueWithPolicy(ctx, q, id, s, pol, obs)
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func waitForWALCapacity(ctx context.Context, wal ports.WAL, pol ports.Policy, obs ports.Observability) error {
	if pol.MaxWALSizeBytes <= 0 {
		return nil
	}
	sleep := idleSleep(pol)

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return nil
		}

		switch pol.OnWALFull {
		case "block":
			if err := sleepCtx(ctx, sleep); err != nil {
				return err
			}
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return ErrWALFull
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return ErrWALFull
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.SampleQueue, id ports.WALEntryID, s domain.Sample, pol ports.Policy, obs ports.Observability) error {
	sleep := idleSleep(pol)

	for {
		if ok := q.Enqueue(id, s); ok {
			return nil
		}

		switch pol.OnQueueFull {
		case "block":
			if err := sleepCtx(ctx, sleep); err != nil {
				return err
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return ErrQueueFull
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return ErrQueueFull
		}
	}
}
