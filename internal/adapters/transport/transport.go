// Package transport adapts streaming protocols to ports.Dialer. The stream
// manager only sees frames; the scheme of the target URL decides whether
// they come from a websocket, an MQTT topic or a NATS subject.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Router dispatches Dial calls by URL scheme.
type Router struct {
	WebSocket *WebSocketDialer
	MQTT      *MQTTDialer
	NATS      *NATSDialer
}

// NewRouter returns a router with default settings for every transport.
func NewRouter() *Router {
	return &Router{
		WebSocket: &WebSocketDialer{},
		MQTT:      &MQTTDialer{},
		NATS:      &NATSDialer{},
	}
}

func (r *Router) Dial(ctx context.Context, target string) (ports.Conn, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	d, err := r.dialerFor(u.Scheme)
	if err != nil {
		return nil, err
	}
	return d.Dial(ctx, target)
}

func (r *Router) dialerFor(scheme string) (ports.Dialer, error) {
	switch strings.ToLower(scheme) {
	case "ws", "wss":
		if r.WebSocket != nil {
			return r.WebSocket, nil
		}
	case "mqtt", "mqtts", "tcp", "ssl":
		if r.MQTT != nil {
			return r.MQTT, nil
		}
	case "nats", "tls":
		if r.NATS != nil {
			return r.NATS, nil
		}
	}
	return nil, fmt.Errorf("transport: unsupported scheme %q", scheme)
}

// Supported reports whether a target with this scheme can be dialed.
func Supported(scheme string) bool {
	_, err := NewRouter().dialerFor(scheme)
	return err == nil
}

var _ ports.Dialer = (*Router)(nil)
