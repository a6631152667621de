package domain

import "time"

// Sample is one validated heart-rate reading.
type Sample struct {
	Time time.Time `json:"time"`
	BPM  float64   `json:"bpm"`
}

// ConnectionState is the externally visible status of a stream connection.
type ConnectionState uint8

const (
	StateConnecting ConnectionState = iota
	StateOnline
	StateOffline
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is the read model handed to consumers of a live stream.
type Snapshot struct {
	Samples   []Sample
	Status    ConnectionState
	LastError error
	Attempt   int
}

// Stats summarises a set of samples.
type Stats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ComputeStats returns min/max/avg over samples, all zero when empty.
func ComputeStats(samples []Sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	st := Stats{Min: samples[0].BPM, Max: samples[0].BPM}
	var sum float64
	for _, s := range samples {
		if s.BPM < st.Min {
			st.Min = s.BPM
		}
		if s.BPM > st.Max {
			st.Max = s.BPM
		}
		sum += s.BPM
	}
	st.Avg = sum / float64(len(samples))
	return st
}
