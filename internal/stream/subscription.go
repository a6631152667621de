package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// ErrSubscriptionClosed is returned by Next once the subscription has been
// closed and every queued snapshot has been read.
var ErrSubscriptionClosed = errors.New("stream: subscription closed")

// Subscription delivers snapshots in the order the manager produced them.
// When the reader falls more than its buffer behind, the oldest pending
// snapshots are dropped; order among the remaining ones is kept.
type Subscription struct {
	mu      sync.Mutex
	queue   []domain.Snapshot
	limit   int
	closed  bool
	notify  chan struct{}
	onDrop  func()
	release func()
	once    sync.Once
}

func newSubscription(limit int, onDrop func()) *Subscription {
	return &Subscription{
		queue:  make([]domain.Snapshot, 0, limit),
		limit:  limit,
		notify: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// Next blocks until the next snapshot is available, ctx is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (domain.Snapshot, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			snap := s.queue[0]
			s.queue[0] = domain.Snapshot{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return snap, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return domain.Snapshot{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return domain.Snapshot{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close detaches the subscription from its manager. Snapshots already
// queued can still be read.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
	s.close()
}

func (s *Subscription) push(snap domain.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	dropped := false
	if len(s.queue) >= s.limit {
		s.queue[0] = domain.Snapshot{}
		s.queue = s.queue[1:]
		dropped = true
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	if dropped && s.onDrop != nil {
		s.onDrop()
	}
	s.signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
