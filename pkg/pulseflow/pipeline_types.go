package pulseflow

import (
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Sample is one validated heart-rate reading: a UTC instant and a bpm value.
type Sample = domain.Sample

// Snapshot is the live view handed to subscribers: window, status, last
// error and reconnect attempt.
type Snapshot = domain.Snapshot

// Stats summarises a set of samples.
type Stats = domain.Stats

// ConnectionState is connecting, online or offline.
type ConnectionState = domain.ConnectionState

const (
	StateConnecting = domain.StateConnecting
	StateOnline     = domain.StateOnline
	StateOffline    = domain.StateOffline
)

// QueuedSample represents an item buffered inside the bounded queue.
type QueuedSample = ports.QueuedSample

// Dialer opens streaming connections; implement it to feed the monitor from
// a transport the built-in router does not cover.
type Dialer = ports.Dialer

// Conn is a single live connection returned by a Dialer.
type Conn = ports.Conn

// Frame is one inbound transport message.
type Frame = ports.Frame

// FrameKind tells text frames from binary ones.
type FrameKind = ports.FrameKind

const (
	FrameText   = ports.FrameText
	FrameBinary = ports.FrameBinary
)

// ErrConnClosed marks an orderly close; return it from Conn.ReadFrame so the
// monitor does not record an error.
var ErrConnClosed = ports.ErrConnClosed

// SampleQueue is the bounded, in-memory queue that decouples the stream and the store.
type SampleQueue = ports.SampleQueue

// Transformer lets callers reject or adjust samples before persistence.
type Transformer = ports.Transformer

// Sink consumes batches of samples and persists them to any downstream system.
type Sink = ports.Sink

// HistoryStore answers range and aggregate queries for the HTTP API.
type HistoryStore = ports.HistoryStore

// Observability emits metrics/logs about the stream and the ingest path.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// ComputeStats returns min/max/avg over samples, all zero when empty.
func ComputeStats(samples []Sample) Stats { return domain.ComputeStats(samples) }
