package pulseflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/PulseFlow/internal/adapters/observability"
	"github.com/ghalamif/PulseFlow/internal/adapters/queue"
	"github.com/ghalamif/PulseFlow/internal/adapters/store"
	"github.com/ghalamif/PulseFlow/internal/adapters/wal"
	"github.com/ghalamif/PulseFlow/internal/app/httpapi"
	"github.com/ghalamif/PulseFlow/internal/app/pipeline"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/stream"
)

var (
	// ErrQueueFull indicates the in-memory queue rejected the sample according to policy.
	ErrQueueFull = pipeline.ErrQueueFull

	// ErrWALFull indicates the WAL is at capacity and OnWALFull != "block".
	ErrWALFull = pipeline.ErrWALFull

	errConfigRequired = errors.New("pulseflow: config is required")
)

// EdgeRuntimeOption customizes the dependencies used by EdgeRuntime.
type EdgeRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	dialer        Dialer
	sink          Sink
	history       HistoryStore
	transformer   Transformer
	wal           WAL
	queue         SampleQueue
	observability Observability
	logger        *slog.Logger
}

// WithDialer replaces the scheme router (ws, mqtt, nats) with a custom transport.
func WithDialer(d Dialer) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.dialer = d
	}
}

// WithSink injects a custom sink so samples can be sent to any database or API.
// If the sink also implements HistoryStore it serves the history endpoints.
func WithSink(s Sink) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithHistory sets the store behind GET /api/data and /api/stats.
func WithHistory(h HistoryStore) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.history = h
	}
}

// WithTransformer overrides the bpm bounds filter built from the ingest config.
func WithTransformer(t Transformer) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.transformer = t
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithSampleQueue injects a custom queue implementation.
func WithSampleQueue(q SampleQueue) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger replaces the logger built from the log config section.
func WithLogger(l *slog.Logger) EdgeRuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// EdgeRuntime wires the live stream manager, the WAL → queue → store
// pipeline and the HTTP API, and exposes simple lifecycle hooks for
// embedding PulseFlow inside any Go service.
type EdgeRuntime struct {
	cfg         *Config
	policy      ports.Policy
	obs         ports.Observability
	registry    *prometheus.Registry
	wal         ports.WAL
	queue       ports.SampleQueue
	manager     *stream.Manager
	collector   *stream.Collector
	transformer ports.Transformer
	sink        ports.Sink
	history     ports.HistoryStore
	timescale   *store.TimescaleStore
	migrate     bool

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	httpSrv     *http.Server
	listener    net.Listener
	gaugeStopCh chan struct{}
	ingestDone  chan struct{}
}

// NewEdgeRuntime bootstraps the default adapters (transport router, file WAL,
// in-memory queue, Timescale or in-memory history, Prometheus observability).
// Callers can use EdgeRuntimeOption values to override any dependency.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		logger = cfg.Logger(os.Stderr)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(reg, logger)
	}

	var (
		walAdapter ports.WAL
		err        error
	)
	if overrides.wal != nil {
		walAdapter = overrides.wal
	} else {
		walAdapter, err = wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return nil, err
		}
	}

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	manager, err := newMonitor(cfg, overrides.dialer, obs)
	if err != nil {
		if overrides.wal == nil {
			walAdapter.Close()
		}
		return nil, err
	}

	rt := &EdgeRuntime{
		cfg:         cfg,
		policy:      cfg.Policy,
		obs:         obs,
		registry:    reg,
		wal:         walAdapter,
		queue:       q,
		manager:     manager,
		collector:   stream.NewCollector(manager),
		transformer: overrides.transformer,
		sink:        overrides.sink,
		history:     overrides.history,
	}

	if rt.sink == nil {
		if err := rt.openDefaultStore(); err != nil {
			if overrides.wal == nil {
				walAdapter.Close()
			}
			return nil, err
		}
	}
	if rt.history == nil {
		if h, ok := rt.sink.(ports.HistoryStore); ok {
			rt.history = h
		}
	}
	if rt.transformer == nil {
		rt.transformer = pipeline.NewTransformer(cfg.Ingest.MinBPM, cfg.Ingest.MaxBPM)
	}

	return rt, nil
}

func (e *EdgeRuntime) openDefaultStore() error {
	if e.cfg.Timescale.ConnString == "" {
		e.sink = store.NewMemoryStore()
		return nil
	}

	var opts []store.Option
	if e.cfg.Timescale.Hypertable {
		opts = append(opts, store.WithHypertable())
	}
	ts, err := store.Open(e.cfg.Timescale.ConnString, e.cfg.Timescale.Table, opts...)
	if err != nil {
		return err
	}
	e.timescale = ts
	e.sink = ts
	e.migrate = e.cfg.Timescale.Migrate
	return nil
}

// Start begins the stream, the edge + ingest pipelines and the HTTP server.
// With a Timescale store it first pings the database and runs the migration
// when timescale.migrate is set. It returns immediately; call Run to block
// on a context instead.
func (e *EdgeRuntime) Start() error {
	if e == nil {
		return fmt.Errorf("edge runtime is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return stream.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())

	if e.timescale != nil {
		if err := e.timescale.Ping(ctx); err != nil {
			cancel()
			return err
		}
		if e.migrate {
			if err := e.timescale.Migrate(ctx); err != nil {
				cancel()
				return err
			}
		}
	}

	e.ingestDone = make(chan struct{})
	go func() {
		defer close(e.ingestDone)
		pipeline.RunIngestPipeline(ctx, e.wal, e.queue, e.transformer, e.sink, e.policy, e.obs)
	}()

	if _, err := pipeline.ReplayWAL(ctx, e.wal, e.queue, e.policy, e.obs); err != nil {
		cancel()
		<-e.ingestDone
		return fmt.Errorf("wal replay: %w", err)
	}

	if err := e.startHTTP(); err != nil {
		cancel()
		<-e.ingestDone
		return err
	}

	if err := pipeline.RunEdgePipeline(ctx, e.collector, e.wal, e.queue, e.policy, e.obs); err != nil {
		cancel()
		<-e.ingestDone
		close(e.gaugeStopCh)
		e.gaugeStopCh = nil
		_ = e.httpSrv.Close()
		return err
	}

	e.cancel = cancel
	e.started = true
	e.obs.LogInfo("runtime_started",
		ports.Field{Key: "target", Value: e.manager.Target()},
		ports.Field{Key: "http_addr", Value: e.listener.Addr().String()},
		ports.Field{Key: "sink", Value: e.sink.Name()})
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (e *EdgeRuntime) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the stream, the HTTP server, the pipelines and the WAL, in
// that order, and closes the database connection.
func (e *EdgeRuntime) Shutdown(ctx context.Context) error {
	var errs []error

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gaugeStopCh != nil {
		close(e.gaugeStopCh)
		e.gaugeStopCh = nil
	}

	if e.httpSrv != nil {
		if err := e.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := e.collector.Stop(); err != nil {
		errs = append(errs, err)
	}

	if e.cancel != nil {
		e.cancel()
		select {
		case <-e.ingestDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("ingest shutdown: %w", ctx.Err()))
		}
	}

	if err := e.wal.Close(); err != nil {
		errs = append(errs, err)
	}

	if e.timescale != nil {
		if err := e.timescale.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Publish admits an externally produced sample into the WAL → store path,
// subject to the configured backpressure policy.
func (e *EdgeRuntime) Publish(ctx context.Context, s Sample) error {
	return pipeline.Publish(ctx, e.wal, e.queue, e.policy, e.obs, s)
}

// Monitor returns the live stream manager for snapshots and subscriptions.
func (e *EdgeRuntime) Monitor() *Monitor { return e.manager }

// Addr is the address the HTTP server listens on, or "" before Start.
func (e *EdgeRuntime) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Handler returns the HTTP API, metrics and health routes.
func (e *EdgeRuntime) Handler() http.Handler {
	api := &httpapi.Server{
		History: e.history,
		Live:    e.manager,
		Publish: e.Publish,
		Metrics: promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}),
		Obs:     e.obs,
	}
	return api.Handler()
}

func (e *EdgeRuntime) startHTTP() error {
	ln, err := net.Listen("tcp", e.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.cfg.Metrics.Addr, err)
	}
	e.listener = ln
	e.httpSrv = &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.obs.LogError("http_server_exited", err)
		}
	}()

	e.gaugeStopCh = make(chan struct{})
	go e.recordResourceGauges(e.gaugeStopCh, time.Second)
	return nil
}

func (e *EdgeRuntime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := e.wal.Stats()
			e.obs.SetGauge("pulse_wal_size_bytes", float64(stats.SizeBytes))
			e.obs.SetGauge("pulse_queue_length", float64(e.queue.Len()))
		}
	}
}
