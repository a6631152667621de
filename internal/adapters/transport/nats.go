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

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

var ErrMissingSubject = errors.New("transport: nats target needs a subject path")

// NATSDialer subscribes to the subject named by the target URL path.
// Path separators map to subject tokens, so nats://host:4222/heart/bpm
// listens on heart.bpm.
type NATSDialer struct {
	Name    string
	Buffer  int
	Timeout time.Duration
}

func (d *NATSDialer) Dial(ctx context.Context, target string) (ports.Conn, error) {
	server, subject, err := splitNATSTarget(target)
	if err != nil {
		return nil, err
	}
	buffer := d.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	timeout := d.Timeout
	if deadline, ok := ctx.Deadline(); ok && (timeout <= 0 || time.Until(deadline) < timeout) {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	c := &natsConn{
		msgs:   make(chan *nats.Msg, buffer),
		lost:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	name := d.Name
	if name == "" {
		name = "pulseflow"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			select {
			case c.lost <- err:
			default:
			}
		}),
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(server, opts...)
		ch <- result{nc, err}
	}()

	var nc *nats.Conn
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("nats connect %s: %w", server, r.err)
		}
		nc = r.nc
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, ctx.Err()
	}

	c.nc = nc
	sub, err := nc.ChanSubscribe(subject, c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	c.sub = sub
	// FlushWithContext refuses a ctx without a deadline
	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := nc.FlushWithContext(flushCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return c, nil
}

func splitNATSTarget(target string) (server, subject string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	subject = strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", ".")
	if subject == "" {
		return "", "", ErrMissingSubject
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host, User: u.User}
	return base.String(), subject, nil
}

type natsConn struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	lost   chan error
	closed chan struct{}
	once   sync.Once
}

func (c *natsConn) ReadFrame(ctx context.Context) (ports.Frame, error) {
	select {
	case msg := <-c.msgs:
		kind := ports.FrameBinary
		if utf8.Valid(msg.Data) {
			kind = ports.FrameText
		}
		return ports.Frame{Kind: kind, Data: msg.Data}, nil
	case err := <-c.lost:
		select {
		case <-c.closed:
			return ports.Frame{}, ports.ErrConnClosed
		default:
		}
		return ports.Frame{}, fmt.Errorf("nats connection lost: %w", err)
	case <-c.closed:
		return ports.Frame{}, ports.ErrConnClosed
	case <-ctx.Done():
		return ports.Frame{}, ctx.Err()
	}
}

func (c *natsConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.sub != nil {
			_ = c.sub.Unsubscribe()
		}
		c.nc.Close()
	})
	return nil
}

var _ ports.Dialer = (*NATSDialer)(nil)
