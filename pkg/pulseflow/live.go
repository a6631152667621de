package pulseflow

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/PulseFlow/internal/adapters/observability"
	"github.com/ghalamif/PulseFlow/internal/adapters/transport"
	"github.com/ghalamif/PulseFlow/internal/stream"
)

// Monitor keeps the live heart-rate window for one streaming endpoint and
// reconnects with jittered exponential backoff.
type Monitor = stream.Manager

// Subscription delivers every snapshot a Monitor produces, in order.
type Subscription = stream.Subscription

var (
	ErrAlreadySubscribed  = stream.ErrAlreadySubscribed
	ErrSubscriptionClosed = stream.ErrSubscriptionClosed
	ErrMonitorClosed      = stream.ErrClosed
)

// NewLiveMonitor builds a standalone live monitor from the stream section of cfg,
// without the WAL, history or HTTP API. Only WithDialer, WithObservability
// and WithLogger apply.
func NewLiveMonitor(cfg *Config, opts ...EdgeRuntimeOption) (*Monitor, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}
	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}
	obs := overrides.observability
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			logger = cfg.Logger(os.Stderr)
		}
		obs = observability.NewPromObs(prometheus.NewRegistry(), logger)
	}
	return newMonitor(cfg, overrides.dialer, obs)
}

func newMonitor(cfg *Config, dialer Dialer, obs Observability) (*Monitor, error) {
	if dialer == nil {
		router := transport.NewRouter()
		router.MQTT.ClientID = cfg.Stream.MQTT.ClientID
		router.MQTT.QoS = cfg.Stream.MQTT.QoS
		dialer = router
	}
	return stream.New(cfg.StreamManagerConfig(), dialer, stream.WithObservability(obs))
}
