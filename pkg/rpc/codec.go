package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-petasos/pkg/pools"
)

// Frame flags
const (
	flagPlain  byte = 0
	flagSnappy byte = 1
)

// DefaultCompressionThreshold is the encoded size above which frames are
// snappy-compressed.
const DefaultCompressionThreshold = 1024

// Codec turns envelopes into frames: one flag byte followed by JSON,
// snappy-compressed when larger than Threshold.
type Codec struct {
	Threshold int
}

// NewCodec returns a codec using the default threshold
func NewCodec() Codec {
	return Codec{Threshold: DefaultCompressionThreshold}
}

// Encode marshals v into a frame
func (c Codec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if c.Threshold > 0 && len(data) > c.Threshold {
		compressed := snappy.Encode(nil, data)
		frame := make([]byte, 0, len(compressed)+1)
		frame = append(frame, flagSnappy)
		return append(frame, compressed...), nil
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, flagPlain)
	return append(frame, data...), nil
}

// Decode unmarshals a frame into v
func (c Codec) Decode(frame []byte, v any) error {
	if len(frame) < 2 {
		return ErrFrameTooShort
	}
	body := frame[1:]
	switch frame[0] {
	case flagPlain:
	case flagSnappy:
		n, err := snappy.DecodedLen(body)
		if err != nil {
			return fmt.Errorf("failed to decompress frame: %w", err)
		}
		// Unmarshal copies what it keeps, so the buffer goes back afterwards
		buf := pools.Get(n)
		defer pools.Put(buf)
		if body, err = snappy.Decode(buf, body); err != nil {
			return fmt.Errorf("failed to decompress frame: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFlag, frame[0])
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

// Compressed reports whether frame carries a compressed body
func Compressed(frame []byte) bool {
	return len(frame) > 0 && frame[0] == flagSnappy
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if v == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
