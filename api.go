package pulseflow

import (
	"time"

	base "github.com/ghalamif/PulseFlow/pkg/pulseflow"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull          = base.ErrQueueFull
	ErrWALFull            = base.ErrWALFull
	ErrChannelSinkClosed  = base.ErrChannelSinkClosed
	ErrConnClosed         = base.ErrConnClosed
	ErrAlreadySubscribed  = base.ErrAlreadySubscribed
	ErrSubscriptionClosed = base.ErrSubscriptionClosed
)

// Type aliases so consumers can import github.com/ghalamif/PulseFlow directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	StreamConfig      = base.StreamConfig
	TimescaleConfig   = base.TimescaleConfig
	MetricsConfig     = base.MetricsConfig
	WALConfig         = base.WALConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	EdgeRuntime       = base.EdgeRuntime
	EdgeRuntimeOption = base.EdgeRuntimeOption
	Monitor           = base.Monitor
	Subscription      = base.Subscription
	Sample            = base.Sample
	Snapshot          = base.Snapshot
	Stats             = base.Stats
	SampleBatchSink   = base.SampleBatchSink
	Dialer            = base.Dialer
	Conn              = base.Conn
	Frame             = base.Frame
	Sink              = base.Sink
	HistoryStore      = base.HistoryStore
	Transformer       = base.Transformer
	SampleQueue       = base.SampleQueue
	WAL               = base.WAL
	Observability     = base.Observability
	QueuedSample      = base.QueuedSample
	WALEntryID        = base.WALEntryID
	WALStats          = base.WALStats
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithRuntimeOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithRuntimeOptions(opts...)
}

func WithFlowObservability(obs Observability) FlowOption {
	return base.WithFlowObservability(obs)
}

func StreamInTarget(target string) StreamInOption {
	return base.StreamInTarget(target)
}

func StreamInDebug(target ...string) StreamInOption {
	return base.StreamInDebug(target...)
}

func StreamInWindow(points int) StreamInOption {
	return base.StreamInWindow(points)
}

func StreamInBackoff(initial, maxDelay time.Duration) StreamInOption {
	return base.StreamInBackoff(initial, maxDelay)
}

func StreamInDialer(d Dialer) StreamInOption {
	return base.StreamInDialer(d)
}

func StreamInQueue(q SampleQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamOutTimescale(connString, table string) StreamOutOption {
	return base.StreamOutTimescale(connString, table)
}

func StreamOutBPMBounds(minBPM, maxBPM float64) StreamOutOption {
	return base.StreamOutBPMBounds(minBPM, maxBPM)
}

func StreamOutHTTP(addr string) StreamOutOption {
	return base.StreamOutHTTP(addr)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutHistory(h HistoryStore) StreamOutOption {
	return base.StreamOutHistory(h)
}

func StreamOutTransformer(tr Transformer) StreamOutOption {
	return base.StreamOutTransformer(tr)
}

func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithDialer(d Dialer) EdgeRuntimeOption {
	return base.WithDialer(d)
}

func WithSink(s Sink) EdgeRuntimeOption {
	return base.WithSink(s)
}

func WithHistory(h HistoryStore) EdgeRuntimeOption {
	return base.WithHistory(h)
}

func WithTransformer(tr Transformer) EdgeRuntimeOption {
	return base.WithTransformer(tr)
}

func WithWAL(w WAL) EdgeRuntimeOption {
	return base.WithWAL(w)
}

func WithSampleQueue(q SampleQueue) EdgeRuntimeOption {
	return base.WithSampleQueue(q)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

// ComputeStats returns min/max/avg over samples, all zero when empty.
func ComputeStats(samples []Sample) Stats {
	return base.ComputeStats(samples)
}

// Live monitor.
func NewLiveMonitor(cfg *Config, opts ...EdgeRuntimeOption) (*Monitor, error) {
	return base.NewLiveMonitor(cfg, opts...)
}

// Sink adapters.
func NewCallbackSink(name string, fn SampleBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Sample, func()) {
	return base.NewChannelSink(name, buffer)
}
