package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// PromObs implements ports.Observability with Prometheus collectors and a
// slog logger. Unknown metric names are ignored.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pulse collectors on reg. A nil reg means the
// default registerer; a nil logger means slog.Default().
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &PromObs{
		logger:   logger,
		counters: map[string]prometheus.Counter{},
		gauges:   map[string]prometheus.Gauge{},
		histos:   map[string]prometheus.Observer{},
	}

	counter := func(name, help string) {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		p.counters[name] = c
	}
	gauge := func(name, help string) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		p.gauges[name] = g
	}
	histogram := func(name, help string, buckets []float64) {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
		reg.MustRegister(h)
		p.histos[name] = h
	}

	counter("pulse_frames_received_total", "Frames read from the stream connection.")
	counter("pulse_frames_ignored_total", "Frames that were not structured payloads.")
	counter("pulse_frames_rejected_total", "Structured frames that failed decoding or validation.")
	counter("pulse_samples_accepted_total", "Samples appended to the live buffer.")
	counter("pulse_connect_failures_total", "Dial attempts that failed.")
	counter("pulse_reconnects_scheduled_total", "Reconnect timers armed after a connection ended.")
	counter("pulse_updates_dropped_total", "Snapshots dropped because a subscriber fell behind.")
	counter("pulse_samples_ingested_total", "Samples successfully written to the history store.")
	counter("pulse_dlq_total", "Samples sent to the DLQ due to transform or sink failures.")
	counter("pulse_queue_dropped_total", "Samples lost due to queue backpressure policies.")

	gauge("pulse_connection_state", "Connection state: 0 connecting, 1 online, 2 offline.")
	gauge("pulse_buffer_length", "Samples currently held in the live buffer.")
	gauge("pulse_wal_size_bytes", "Size of the WAL on disk.")
	gauge("pulse_queue_length", "Samples buffered in the in-memory queue.")

	histogram("pulse_reconnect_delay_seconds", "Delay chosen before each reconnect attempt.",
		prometheus.ExponentialBuckets(0.25, 2, 8))
	histogram("ingest_sink_latency_seconds", "Latency from dequeued batch to store commit.",
		prometheus.ExponentialBuckets(0.001, 2, 12))

	return p
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log(slog.LevelDebug, msg, nil, fields)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log(slog.LevelInfo, msg, nil, fields)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log(slog.LevelWarn, msg, nil, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, fields)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, append(fields, ports.Field{Key: "critical", Value: true}))
}

func (p *PromObs) log(level slog.Level, msg string, err error, fields []ports.Field) {
	ctx := context.Background()
	if !p.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+1)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	p.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, s domain.Sample, err error) {
	p.IncCounter("pulse_dlq_total", 1)
	p.LogWarn("sample_dead_lettered",
		ports.Field{Key: "wal_id", Value: uint64(id)},
		ports.Field{Key: "time", Value: s.Time},
		ports.Field{Key: "bpm", Value: s.BPM},
		ports.Field{Key: "error", Value: errString(err)},
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ ports.Observability = (*PromObs)(nil)
