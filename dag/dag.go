// Package dag encodes and decodes block envelopes for the codecs a store may
// return: raw, dag-pb, dag-cbor and dag-json.
//
// Decoded dag-cbor and dag-json values use the same generic representation:
// map[string]any, []any, string, []byte, bool, nil, int64 (uint64 when the
// value exceeds int64), float64, and links as map[string]any{"/": "<cid>"}.
package dag

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
)

var (
	// ErrDecode is wrapped by all envelope decode failures.
	ErrDecode = errors.New("dag: malformed block")
	// ErrEncode is wrapped by all envelope encode failures.
	ErrEncode = errors.New("dag: cannot encode value")
	// ErrUnsupported is returned for codecs this package has no envelope for.
	ErrUnsupported = errors.New("dag: unsupported codec")
)

// Supported reports whether Decode/Encode handle code.
func Supported(code multicodec.Code) bool {
	switch code {
	case multicodec.Raw, multicodec.DagPb, multicodec.DagCbor, multicodec.DagJson:
		return true
	default:
		return false
	}
}

// Decode unwraps a block's bytes according to its codec.
//
// raw yields a copy of the bytes, dag-pb yields a PBNode, dag-cbor and
// dag-json yield generic values.
func Decode(code multicodec.Code, data []byte) (any, error) {
	switch code {
	case multicodec.Raw:
		return append([]byte(nil), data...), nil
	case multicodec.DagPb:
		return UnmarshalPB(data)
	case multicodec.DagCbor:
		return UnmarshalCBOR(data)
	case multicodec.DagJson:
		return UnmarshalJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
}

// Encode is the inverse of Decode.
func Encode(code multicodec.Code, v any) ([]byte, error) {
	switch code {
	case multicodec.Raw:
		switch b := v.(type) {
		case []byte:
			return append([]byte(nil), b...), nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("%w: raw value is %T, want bytes", ErrEncode, v)
		}
	case multicodec.DagPb:
		switch n := v.(type) {
		case PBNode:
			return MarshalPB(n)
		case *PBNode:
			if n == nil {
				return nil, fmt.Errorf("%w: nil dag-pb node", ErrEncode)
			}
			return MarshalPB(*n)
		default:
			return nil, fmt.Errorf("%w: dag-pb value is %T, want PBNode", ErrEncode, v)
		}
	case multicodec.DagCbor:
		return MarshalCBOR(v)
	case multicodec.DagJson:
		return MarshalJSON(v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
}

// Link returns the generic representation of a link to c.
func Link(c cid.Cid) map[string]any {
	return map[string]any{"/": c.String()}
}

// AsLink reports whether v is a generic link and returns its target.
func AsLink(v any) (cid.Cid, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return cid.Undef, false
	}
	s, ok := m["/"].(string)
	if !ok {
		return cid.Undef, false
	}
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, false
	}
	return c, true
}
