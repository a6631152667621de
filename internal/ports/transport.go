package ports

import (
	"context"
	"errors"
)

// ErrConnClosed marks a connection that ended with an orderly close rather
// than a transport failure.
var ErrConnClosed = errors.New("transport: connection closed")

type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

// Frame is one inbound message from a streaming transport.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn is a single live duplex connection. ReadFrame blocks until a frame
// arrives, the connection ends, or ctx is done.
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Dialer opens connections to a transport target URL.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}
