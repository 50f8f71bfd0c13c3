package xeda

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONCodec is the default JSON implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// DecodeCodec unmarshals a message payload into a typed value using the provided codec.
func DecodeCodec[T any](c Codec, msg *Message) (T, error) {
	var v T
	if err := c.Unmarshal(msg.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Decode unmarshals msg.Payload into T using a Codec found in ctx.
// Falls back to the default "json" codec if none was injected.
func Decode[T any](ctx context.Context, msg *Message) (T, error) {
	c, ok := CodecFromContext(ctx)
	if !ok {
		c = JSONCodec{}
	}
	return DecodeCodec[T](c, msg)
}

// DecodeEnvelope decodes a consumed message back into an Envelope.
func DecodeEnvelope(ctx context.Context, msg *Message) (Envelope, error) {
	env, err := Decode[Envelope](ctx, msg)
	if err != nil {
		return env, fmt.Errorf("xeda: decode envelope %s: %w", msg.ID, err)
	}
	return env, nil
}
