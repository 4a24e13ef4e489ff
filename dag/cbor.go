package dag

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

// cborLinkTag is the CBOR tag dag-cbor reserves for CIDs.
const cborLinkTag = 42

// encMode encodes with deterministic (length-first) map key order and
// always-64-bit floats, as dag-cbor requires.
var encMode cbor.EncMode

// decMode decodes string-keyed maps into map[string]any and rejects
// indefinite lengths and duplicate keys.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortLengthFirst,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic("dag: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		IndefLength:    cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("dag: CBOR decoder initialization failed: " + err.Error())
	}
}

// UnmarshalCBOR decodes a dag-cbor block into a generic value.
func UnmarshalCBOR(b []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: dag-cbor: %v", ErrDecode, err)
	}
	return fromCBOR(v)
}

func fromCBOR(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case []any:
		for i, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
		return x, nil
	case float32:
		return float64(x), nil
	case cbor.Tag:
		if x.Number != cborLinkTag {
			return nil, fmt.Errorf("%w: dag-cbor: unsupported tag %d", ErrDecode, x.Number)
		}
		raw, ok := x.Content.([]byte)
		if !ok || len(raw) == 0 || raw[0] != 0 {
			return nil, fmt.Errorf("%w: dag-cbor: malformed link", ErrDecode)
		}
		c, err := cid.Cast(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: dag-cbor: link: %v", ErrDecode, err)
		}
		return Link(c), nil
	default:
		return v, nil
	}
}

// MarshalCBOR encodes a generic value as dag-cbor.
func MarshalCBOR(v any) ([]byte, error) {
	t, err := toCBOR(v)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("%w: dag-cbor: %v", ErrEncode, err)
	}
	return b, nil
}

func toCBOR(v any) (any, error) {
	if c, ok := AsLink(v); ok {
		return cborLink(c), nil
	}
	switch x := v.(type) {
	case cid.Cid:
		return cborLink(x), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e, err := toCBOR(x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = e
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := toCBOR(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: dag-cbor forbids NaN and infinities", ErrEncode)
		}
		return x, nil
	case nil, bool, string, []byte, int, int64, uint64:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: dag-cbor: unsupported type %T", ErrEncode, v)
	}
}

func cborLink(c cid.Cid) cbor.Tag {
	return cbor.Tag{Number: cborLinkTag, Content: append([]byte{0}, c.Bytes()...)}
}
