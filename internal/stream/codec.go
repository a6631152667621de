package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

type frameFormat uint8

const (
	formatOpaque frameFormat = iota
	formatJSON
	formatMsgpack
)

func (f frameFormat) String() string {
	switch f {
	case formatJSON:
		return "json"
	case formatMsgpack:
		return "msgpack"
	default:
		return "opaque"
	}
}

// classify decides whether a frame looks like a keyed payload before any
// decoding is attempted. Keepalives and other plain frames come back opaque.
func classify(f ports.Frame) frameFormat {
	if f.Kind == ports.FrameBinary && len(f.Data) > 0 && isMsgpackMap(f.Data[0]) {
		return formatMsgpack
	}
	trimmed := bytes.TrimSpace(f.Data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return formatJSON
	}
	return formatOpaque
}

// isMsgpackMap reports whether b opens a MessagePack map (fixmap, map16, map32).
func isMsgpackMap(b byte) bool {
	return b&0xf0 == 0x80 || b == 0xde || b == 0xdf
}

func decodeFrame(f ports.Frame, format frameFormat) (any, error) {
	var v any
	switch format {
	case formatJSON:
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return nil, fmt.Errorf("decode json frame: %w", err)
		}
	case formatMsgpack:
		if err := msgpack.Unmarshal(f.Data, &v); err != nil {
			return nil, fmt.Errorf("decode msgpack frame: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode %s frame: not a structured payload", format)
	}
	return v, nil
}

// preview trims a frame for log output.
func preview(data []byte) string {
	const limit = 128
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
