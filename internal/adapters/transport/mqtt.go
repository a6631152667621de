package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

var ErrMissingTopic = errors.New("transport: mqtt target needs a topic path")

// MQTTDialer subscribes to the topic named by the target URL path, e.g.
// mqtt://broker:1883/heart/bpm.
type MQTTDialer struct {
	ClientID string
	QoS      byte
	Buffer   int
}

func (d *MQTTDialer) Dial(ctx context.Context, target string) (ports.Conn, error) {
	broker, topic, user, err := splitMQTTTarget(target)
	if err != nil {
		return nil, err
	}

	clientID := d.ClientID
	if clientID == "" {
		clientID = "pulseflow-" + uuid.NewString()
	}
	buffer := d.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	c := &mqttConn{
		msgs:   make(chan ports.Frame, buffer),
		lost:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}
	if user != nil {
		opts.SetUsername(user.Username())
		if pw, ok := user.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case c.lost <- err:
		default:
		}
	})

	c.client = mqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}

	sub := c.client.Subscribe(topic, d.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		kind := ports.FrameBinary
		if utf8.Valid(payload) {
			kind = ports.FrameText
		}
		select {
		case c.msgs <- ports.Frame{Kind: kind, Data: payload}:
		case <-c.closed:
		}
	})
	if err := waitToken(ctx, sub); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mqtt subscribe %q: %w", topic, err)
	}
	return c, nil
}

func splitMQTTTarget(target string) (broker, topic string, user *url.Userinfo, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", nil, err
	}
	topic = strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		return "", "", nil, ErrMissingTopic
	}
	if u.Fragment != "" {
		// a trailing '#' wildcard lands in the fragment when unescaped
		topic += "#" + u.Fragment
	} else if strings.HasSuffix(target, "#") {
		topic += "#"
	}
	return u.Scheme + "://" + u.Host, topic, u.User, nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttConn struct {
	client mqtt.Client
	msgs   chan ports.Frame
	lost   chan error
	closed chan struct{}
	once   sync.Once
}

func (c *mqttConn) ReadFrame(ctx context.Context) (ports.Frame, error) {
	select {
	case f := <-c.msgs:
		return f, nil
	case err := <-c.lost:
		return ports.Frame{}, fmt.Errorf("mqtt connection lost: %w", err)
	case <-c.closed:
		return ports.Frame{}, ports.ErrConnClosed
	case <-ctx.Done():
		return ports.Frame{}, ctx.Err()
	}
}

func (c *mqttConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.client.Disconnect(250)
	})
	return nil
}

var _ ports.Dialer = (*MQTTDialer)(nil)
