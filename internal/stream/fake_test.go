package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

const testTarget = "ws://heart.test/ws"

type fakeConn struct {
	frames chan ports.Frame
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan ports.Frame, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(ctx context.Context) (ports.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return ports.Frame{}, err
	case <-c.closed:
		return ports.Frame{}, ports.ErrConnClosed
	case <-ctx.Done():
		return ports.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sendText(s string) {
	c.frames <- ports.Frame{Kind: ports.FrameText, Data: []byte(s)}
}

func (c *fakeConn) sendSample(ts int64, bpm int) {
	c.sendText(fmt.Sprintf(`{"timestamp":%d,"value":%d}`, ts, bpm))
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer hands out scripted results, blocking until one is queued.
type fakeDialer struct {
	results   chan dialResult
	dials     atomic.Int32
	cancelled atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(chan dialResult, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (ports.Conn, error) {
	d.dials.Add(1)
	select {
	case r := <-d.results:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		d.cancelled.Add(1)
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) succeed() *fakeConn {
	c := newFakeConn()
	d.results <- dialResult{conn: c}
	return c
}

func (d *fakeDialer) fail(msg string) {
	d.results <- dialResult{err: errors.New(msg)}
}

func newTestManager(t *testing.T, d ports.Dialer, capacity int, delay time.Duration) *Manager {
	t.Helper()
	m, err := New(Config{
		Target:       testTarget,
		MaxPoints:    capacity,
		InitialDelay: delay,
		MaxDelay:     4 * delay,
		DialTimeout:  time.Minute,
	}, d, WithJitter(func() float64 { return 0 }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func waitForStatus(t *testing.T, m *Manager, want domain.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Status() == want },
		2*time.Second, 2*time.Millisecond, "status never became %s (now %s)", want, m.Status())
}

// collectUntil reads snapshots until pred matches and returns all of them.
func collectUntil(t *testing.T, sub *Subscription, pred func(domain.Snapshot) bool) []domain.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seen []domain.Snapshot
	for {
		snap, err := sub.Next(ctx)
		require.NoError(t, err, "snapshots seen so far: %+v", seen)
		seen = append(seen, snap)
		if pred(snap) {
			return seen
		}
	}
}

func sampleBPMs(samples []domain.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.BPM
	}
	return out
}
