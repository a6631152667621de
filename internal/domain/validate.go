package domain

import (
	"math"
	"time"
)

// maxEpochMillis is the largest magnitude an epoch-millisecond timestamp may
// have (±100,000,000 days around 1970).
const maxEpochMillis = 8.64e15

// Validate normalizes a decoded payload of the form {timestamp, value} into
// a Sample. Any other shape, including opaque strings and bytes, yields
// ok == false.
func Validate(raw any) (Sample, bool) {
	var ts, bpm any
	switch m := raw.(type) {
	case map[string]any:
		ts, bpm = m["timestamp"], m["value"]
	case map[any]any:
		ts, bpm = m["timestamp"], m["value"]
	default:
		return Sample{}, false
	}

	millis, ok := toFloat(ts)
	if !ok || math.Abs(millis) > maxEpochMillis {
		return Sample{}, false
	}
	value, ok := toFloat(bpm)
	if !ok {
		return Sample{}, false
	}

	return Sample{
		Time: time.UnixMilli(int64(math.Trunc(millis))).UTC(),
		BPM:  value,
	}, true
}

// toFloat accepts every numeric kind a JSON or MessagePack decoder can
// produce. NaN and infinities are not numbers a sample can carry.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
