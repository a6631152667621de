package pulseflow

import (
	"context"
	"errors"
	"time"
)

var errNilFlow = errors.New("pulseflow: flow is nil")

// Flow assembles a runtime in the order data moves: Conf settles the
// configuration, StreamIN says which heart-rate stream to follow and how the
// live window behaves, StreamOUT says where accepted samples are stored and
// served. Each step edits a private copy of the configuration, which is
// validated again when the runtime is built.
type Flow struct {
	cfg  Config
	opts []EdgeRuntimeOption
}

// FlowOption adjusts a Flow while it is created.
type FlowOption func(*Flow)

// StreamInOption adjusts the inbound side: target, window, reconnect
// backoff and the WAL/queue in front of the store.
type StreamInOption func(*Flow)

// StreamOutOption adjusts the outbound side: store, bpm bounds, HTTP API.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk and starts a Flow from it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from a copy of cfg; later steps never touch
// the caller's struct.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}
	f := &Flow{cfg: *cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the Flow's working copy, including every edit made so far.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return &f.cfg
}

// StreamIN applies inbound options.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Live builds a standalone monitor from the inbound settings alone, for
// callers that want the live window without persistence.
func (f *Flow) Live() (*Monitor, error) {
	if f == nil {
		return nil, errNilFlow
	}
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}
	return NewLiveMonitor(&f.cfg, f.opts...)
}

// StreamOUT applies outbound options, re-validates the configuration and
// builds the runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*EdgeRuntime, error) {
	if f == nil {
		return nil, errNilFlow
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}
	return NewEdgeRuntime(&f.cfg, f.opts...)
}

// Run builds the runtime and blocks until ctx is cancelled.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithRuntimeOptions passes EdgeRuntimeOption values straight to the runtime.
func WithRuntimeOptions(opts ...EdgeRuntimeOption) FlowOption {
	return func(f *Flow) { f.use(opts...) }
}

// WithFlowObservability routes logs and metrics of every stage to obs.
func WithFlowObservability(obs Observability) FlowOption {
	return func(f *Flow) {
		if obs != nil {
			f.use(WithObservability(obs))
		}
	}
}

// StreamInTarget follows target instead of stream.target and turns debug
// mode off.
func StreamInTarget(target string) StreamInOption {
	return func(f *Flow) {
		f.cfg.Stream.Target = target
		f.cfg.Stream.Debug = false
	}
}

// StreamInDebug switches to stream.debug_target, or to target when given.
func StreamInDebug(target ...string) StreamInOption {
	return func(f *Flow) {
		if len(target) > 0 && target[0] != "" {
			f.cfg.Stream.DebugTarget = target[0]
		}
		f.cfg.Stream.Debug = true
	}
}

// StreamInWindow sets how many recent samples the live window keeps.
func StreamInWindow(points int) StreamInOption {
	return func(f *Flow) { f.cfg.Stream.MaxPoints = points }
}

// StreamInBackoff sets the first reconnect delay and its ceiling.
func StreamInBackoff(initial, maxDelay time.Duration) StreamInOption {
	return func(f *Flow) {
		f.cfg.Stream.InitialDelay = initial
		f.cfg.Stream.MaxDelay = maxDelay
	}
}

// StreamInDialer replaces the ws/mqtt/nats router, e.g. with a simulator.
func StreamInDialer(d Dialer) StreamInOption {
	return func(f *Flow) {
		if d != nil {
			f.use(WithDialer(d))
		}
	}
}

// StreamInQueue swaps the in-memory queue between the stream and the store.
func StreamInQueue(q SampleQueue) StreamInOption {
	return func(f *Flow) {
		if q != nil {
			f.use(WithSampleQueue(q))
		}
	}
}

// StreamInWAL swaps the file WAL.
func StreamInWAL(w WAL) StreamInOption {
	return func(f *Flow) {
		if w != nil {
			f.use(WithWAL(w))
		}
	}
}

// StreamOutTimescale stores samples in the given TimescaleDB table.
func StreamOutTimescale(connString, table string) StreamOutOption {
	return func(f *Flow) {
		f.cfg.Timescale.ConnString = connString
		if table != "" {
			f.cfg.Timescale.Table = table
		}
	}
}

// StreamOutBPMBounds dead-letters samples outside [minBPM, maxBPM] instead
// of storing them. Zero leaves a side open.
func StreamOutBPMBounds(minBPM, maxBPM float64) StreamOutOption {
	return func(f *Flow) {
		f.cfg.Ingest.MinBPM = minBPM
		f.cfg.Ingest.MaxBPM = maxBPM
	}
}

// StreamOutHTTP serves the history, live and metrics endpoints on addr.
func StreamOutHTTP(addr string) StreamOutOption {
	return func(f *Flow) { f.cfg.Metrics.Addr = addr }
}

// StreamOutSink replaces the store with s.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.use(WithSink(s))
		}
	}
}

// StreamOutHistory sets the store behind /api/data and /api/stats.
func StreamOutHistory(h HistoryStore) StreamOutOption {
	return func(f *Flow) {
		if h != nil {
			f.use(WithHistory(h))
		}
	}
}

// StreamOutTransformer replaces the bpm bounds filter.
func StreamOutTransformer(tr Transformer) StreamOutOption {
	return func(f *Flow) {
		if tr != nil {
			f.use(WithTransformer(tr))
		}
	}
}

// StreamOutCallback hands every stored batch to fn instead of a database.
func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return func(f *Flow) { f.use(WithSink(NewCallbackSink(name, fn))) }
}

func (f *Flow) use(opts ...EdgeRuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
