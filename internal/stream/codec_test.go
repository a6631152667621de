package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

func TestClassifyFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame ports.Frame
		want  frameFormat
	}{
		{"json", ports.Frame{Kind: ports.FrameText, Data: []byte(`{"a":1}`)}, formatJSON},
		{"json padded", ports.Frame{Kind: ports.FrameText, Data: []byte("\n\t {\"a\":1}")}, formatJSON},
		{"malformed json still structured", ports.Frame{Kind: ports.FrameText, Data: []byte(`{oops`)}, formatJSON},
		{"heartbeat", ports.Frame{Kind: ports.FrameText, Data: []byte("ping")}, formatOpaque},
		{"array", ports.Frame{Kind: ports.FrameText, Data: []byte(`[1,2]`)}, formatOpaque},
		{"empty", ports.Frame{Kind: ports.FrameText}, formatOpaque},
		{"fixmap", ports.Frame{Kind: ports.FrameBinary, Data: []byte{0x82, 0xa1}}, formatMsgpack},
		{"map16", ports.Frame{Kind: ports.FrameBinary, Data: []byte{0xde, 0x00, 0x02}}, formatMsgpack},
		{"text with map byte", ports.Frame{Kind: ports.FrameText, Data: []byte{0x82}}, formatOpaque},
		{"binary array", ports.Frame{Kind: ports.FrameBinary, Data: []byte{0x92, 0x01}}, formatOpaque},
		{"binary json", ports.Frame{Kind: ports.FrameBinary, Data: []byte(`{"a":1}`)}, formatJSON},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.frame))
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := decodeFrame(ports.Frame{Data: []byte(`{oops`)}, formatJSON)
	assert.Error(t, err)
	_, err = decodeFrame(ports.Frame{Data: []byte{0x82}}, formatMsgpack)
	assert.Error(t, err)
	_, err = decodeFrame(ports.Frame{Data: []byte("ping")}, formatOpaque)
	assert.Error(t, err)
}
