package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

var (
	ErrInvalidCapacity   = errors.New("stream: max points must be > 0")
	ErrInvalidTarget     = errors.New("stream: invalid transport target")
	ErrNilDialer         = errors.New("stream: dialer is required")
	ErrAlreadyStarted    = errors.New("stream: manager already started")
	ErrAlreadySubscribed = errors.New("stream: manager already has a subscriber")
	ErrClosed            = errors.New("stream: manager closed")
)

// Config parameterizes a Manager.
type Config struct {
	Target       string
	MaxPoints    int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	DialTimeout  time.Duration
	UpdateBuffer int
}

func (c *Config) applyDefaults() {
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.UpdateBuffer <= 0 {
		c.UpdateBuffer = 64
	}
}

func (c *Config) validate() error {
	if c.MaxPoints <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.MaxPoints)
	}
	if err := ValidateTarget(c.Target); err != nil {
		return err
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.DialTimeout < 0 {
		return errors.New("stream: delays must not be negative")
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("stream: max delay %s is below initial delay %s", c.MaxDelay, c.InitialDelay)
	}
	return nil
}

// ValidateTarget checks that target is an absolute URL with a host.
func ValidateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q needs a scheme and host", ErrInvalidTarget, target)
	}
	return nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithObservability routes logs and metrics to obs.
func WithObservability(obs ports.Observability) Option {
	return func(m *Manager) {
		if obs != nil {
			m.obs = obs
		}
	}
}

// WithJitter replaces the random source used to spread reconnects.
func WithJitter(fn func() float64) Option {
	return func(m *Manager) {
		m.backoff.Jitter = fn
	}
}

// Manager owns one streaming connection at a time, feeds validated samples
// into a bounded window and reconnects with jittered exponential backoff.
//
// All state is written by the run goroutine under mu; readers take copies.
type Manager struct {
	cfg     Config
	dialer  ports.Dialer
	obs     ports.Observability
	backoff Backoff
	out     chan<- domain.Sample

	mu      sync.RWMutex
	state   domain.ConnectionState
	buf     *domain.SampleBuffer
	attempt int
	lastErr error
	conn    ports.Conn
	connID  string
	sub     *Subscription
	started bool
	stopped bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and returns a Manager in the Connecting state. Nothing
// is dialed until Start.
func New(cfg Config, dialer ports.Dialer, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, ErrNilDialer
	}
	buf, err := domain.NewSampleBuffer(cfg.MaxPoints)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		obs:    nopObservability{},
		backoff: Backoff{
			Initial: cfg.InitialDelay,
			Max:     cfg.MaxDelay,
			Jitter:  rand.Float64,
		},
		state: domain.StateConnecting,
		buf:   buf,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Start launches the connection lifecycle. Cancelling ctx stops it and
// publishes a final Offline snapshot; the manager can still be read and
// must still be closed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.started = true
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Close tears down the live connection, cancels any pending reconnect or
// in-flight dial and waits for the lifecycle goroutine to exit. No state
// transitions happen afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
		return nil
	}
	m.stopped = true
	started, cancel, sub := m.started, m.cancel, m.sub
	m.sub = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-m.done
	}
	if sub != nil {
		sub.close()
	}
	return m.teardown()
}

// Snapshot returns a consistent copy of the current read model.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) Status() domain.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Samples() []domain.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buf.Samples()
}

func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Target is the transport URL this manager dials.
func (m *Manager) Target() string { return m.cfg.Target }

// Subscribe returns the single push subscription. Its first element is the
// state at the time of the call; later elements follow every mutation in
// the order they happened.
func (m *Manager) Subscribe() (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrClosed
	}
	if m.sub != nil {
		return nil, ErrAlreadySubscribed
	}

	sub := newSubscription(m.cfg.UpdateBuffer, func() {
		m.obs.IncCounter("pulse_updates_dropped_total", 1)
	})
	sub.release = func() {
		m.mu.Lock()
		if m.sub == sub {
			m.sub = nil
		}
		m.mu.Unlock()
	}
	sub.push(m.snapshotLocked())
	m.sub = sub
	return sub, nil
}

func (m *Manager) setOutput(out chan<- domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return ErrAlreadyStarted
	}
	m.out = out
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer func() {
		if err := m.teardown(); err != nil {
			m.obs.LogDebug("stream_teardown_failed", ports.Field{Key: "error", Value: err})
		}
		// no-op after Close
		if m.mutate(func() { m.state = domain.StateOffline }) {
			m.obs.LogInfo("stream_stopped", ports.Field{Key: "target", Value: m.cfg.Target})
		}
	}()

	for {
		m.session(ctx)
		if ctx.Err() != nil {
			return
		}

		delay, ok := m.scheduleReconnect()
		if !ok {
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connect → read → close cycle and always leaves the
// manager Offline unless it is shutting down.
func (m *Manager) session(ctx context.Context) {
	if err := m.teardown(); err != nil {
		m.obs.LogDebug("stream_teardown_failed", ports.Field{Key: "error", Value: err})
	}

	connID := uuid.NewString()
	if !m.mutate(func() {
		m.state = domain.StateConnecting
		m.connID = connID
	}) {
		return
	}
	m.obs.LogInfo("stream_connecting",
		ports.Field{Key: "target", Value: m.cfg.Target},
		ports.Field{Key: "conn_id", Value: connID},
		ports.Field{Key: "attempt", Value: m.currentAttempt()})

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.cfg.Target)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.obs.IncCounter("pulse_connect_failures_total", 1)
		m.onError(fmt.Errorf("dial %s: %w", m.cfg.Target, err))
		m.onClose()
		return
	}

	if !m.onOpen(conn) {
		_ = conn.Close()
		return
	}

	err = m.readLoop(ctx, conn)
	if ctx.Err() != nil {
		return
	}
	if !errors.Is(err, ports.ErrConnClosed) {
		m.onError(err)
	}
	if cerr := m.teardown(); cerr != nil {
		m.obs.LogDebug("stream_teardown_failed", ports.Field{Key: "error", Value: cerr})
	}
	m.onClose()
}

func (m *Manager) readLoop(ctx context.Context, conn ports.Conn) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		m.handleFrame(ctx, frame)
	}
}

func (m *Manager) handleFrame(ctx context.Context, frame ports.Frame) {
	m.obs.IncCounter("pulse_frames_received_total", 1)

	format := classify(frame)
	if format == formatOpaque {
		m.obs.IncCounter("pulse_frames_ignored_total", 1)
		m.obs.LogDebug("stream_frame_ignored", ports.Field{Key: "frame", Value: preview(frame.Data)})
		return
	}

	raw, err := decodeFrame(frame, format)
	if err != nil {
		m.obs.IncCounter("pulse_frames_rejected_total", 1)
		m.obs.LogWarn("stream_frame_decode_failed",
			ports.Field{Key: "format", Value: format.String()},
			ports.Field{Key: "error", Value: err})
		return
	}

	sample, ok := domain.Validate(raw)
	if !ok {
		m.obs.IncCounter("pulse_frames_rejected_total", 1)
		m.obs.LogWarn("stream_payload_unexpected_shape", ports.Field{Key: "frame", Value: preview(frame.Data)})
		return
	}

	if !m.mutate(func() { m.buf.Append(sample) }) {
		return
	}
	m.obs.IncCounter("pulse_samples_accepted_total", 1)

	if m.out != nil {
		select {
		case m.out <- sample:
		case <-ctx.Done():
		}
	}
}

func (m *Manager) onOpen(conn ports.Conn) bool {
	var connID string
	ok := m.mutate(func() {
		m.conn = conn
		m.attempt = 0
		m.lastErr = nil
		m.state = domain.StateOnline
		connID = m.connID
	})
	if ok {
		m.obs.LogInfo("stream_online",
			ports.Field{Key: "target", Value: m.cfg.Target},
			ports.Field{Key: "conn_id", Value: connID})
	}
	return ok
}

func (m *Manager) onError(err error) {
	if m.mutate(func() { m.lastErr = err }) {
		m.obs.LogError("stream_transport_error", err, ports.Field{Key: "target", Value: m.cfg.Target})
	}
}

func (m *Manager) onClose() {
	m.mutate(func() { m.state = domain.StateOffline })
}

func (m *Manager) scheduleReconnect() (time.Duration, bool) {
	var (
		delay   time.Duration
		attempt int
	)
	ok := m.mutate(func() {
		delay = m.backoff.Delay(m.attempt)
		m.attempt++
		attempt = m.attempt
	})
	if !ok {
		return 0, false
	}
	m.obs.IncCounter("pulse_reconnects_scheduled_total", 1)
	m.obs.ObserveLatency("pulse_reconnect_delay_seconds", delay.Seconds())
	m.obs.LogWarn("stream_reconnect_scheduled",
		ports.Field{Key: "target", Value: m.cfg.Target},
		ports.Field{Key: "delay", Value: delay.String()},
		ports.Field{Key: "attempt", Value: attempt})
	return delay, true
}

// mutate applies fn under the write lock unless the manager has been shut
// down, then publishes the resulting snapshot.
func (m *Manager) mutate(fn func()) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	fn()
	snap := m.snapshotLocked()
	sub := m.sub
	m.mu.Unlock()

	m.obs.SetGauge("pulse_connection_state", float64(snap.Status))
	m.obs.SetGauge("pulse_buffer_length", float64(len(snap.Samples)))
	if sub != nil {
		sub.push(snap)
	}
	return true
}

func (m *Manager) teardown() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (m *Manager) currentAttempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

func (m *Manager) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Samples:   m.buf.Samples(),
		Status:    m.state,
		LastError: m.lastErr,
		Attempt:   m.attempt,
	}
}
