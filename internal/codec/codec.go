// Package codec serializes messages into the opaque payload buffers the
// transport moves around.
//
// Provided implementations:
// - Proto: google.golang.org/protobuf messages
// - JSON:  anything encoding/json handles
// - Raw:   pass-through for pre-encoded []byte payloads
package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"

	"github.com/hanpama/callwire/internal/rpcstatus"
)

// Codec converts between typed messages and payload bytes.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Proto marshals proto.Message values.
type Proto struct{}

func (Proto) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (Proto) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}

func (Proto) Name() string { return "proto" }

// JSON marshals via encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

// Raw passes pre-encoded bytes through unchanged.
type Raw struct{}

func (Raw) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("codec: raw codec needs []byte or *[]byte, got %T", v)
}

func (Raw) Unmarshal(data []byte, v any) error {
	dst, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("codec: raw codec needs *[]byte, got %T", v)
	}
	*dst = data
	return nil
}

func (Raw) Name() string { return "raw" }

// ByName resolves a codec from its Name. Used by flag parsing.
func ByName(name string) (Codec, error) {
	switch name {
	case "proto":
		return Proto{}, nil
	case "json":
		return JSON{}, nil
	case "raw":
		return Raw{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}

// UnmarshalBounded decodes data into dst, rejecting payloads larger than
// maxBytes first. A negative maxBytes means unbounded. The returned Status
// is ResourceExhausted for an oversized payload, Internal for a decode
// failure, OK otherwise.
func UnmarshalBounded(c Codec, data []byte, dst any, maxBytes int) rpcstatus.Status {
	if maxBytes >= 0 && len(data) > maxBytes {
		return rpcstatus.Newf(codes.ResourceExhausted,
			"message of %d bytes exceeds limit of %d", len(data), maxBytes)
	}
	if err := c.Unmarshal(data, dst); err != nil {
		return rpcstatus.Newf(codes.Internal, "unmarshal (%s): %v", c.Name(), err)
	}
	return rpcstatus.OK
}
