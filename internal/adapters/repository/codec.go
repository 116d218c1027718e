package repository

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// codec encodes point values and attribute maps as CBOR. Integers decode as
// int64 and nested maps as map[string]any, whatever the store.
type codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCodec() (codec, error) {
	enc, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return codec{}, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return codec{}, fmt.Errorf("cbor dec mode: %w", err)
	}
	return codec{enc: enc, dec: dec}, nil
}

// encodeValue rejects kinds a historian cannot hold.
func (c codec) encodeValue(v any) ([]byte, error) {
	switch v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, string, bool:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
	}
	return b, nil
}

func (c codec) decodeValue(b []byte) (any, error) {
	var v any
	if err := c.dec.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func (c codec) encodeAttrs(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	b, err := c.enc.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return b, nil
}

func (c codec) decodeAttrs(b []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(b) == 0 {
		return attrs, nil
	}
	if err := c.dec.Unmarshal(b, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}
