package dag

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
)

// UnmarshalJSON decodes a dag-json block into a generic value.
//
// Integers become int64, other numbers float64. {"/": {"bytes": "..."}}
// becomes []byte; links keep their {"/": "<cid>"} form.
func UnmarshalJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: dag-json: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: dag-json: trailing data", ErrDecode)
	}
	return fromJSON(v)
}

func fromJSON(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if inner, ok := x["/"]; ok && len(x) == 1 {
			return fromJSONReserved(inner)
		}
		for k, e := range x {
			n, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case []any:
		for i, e := range x {
			n, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			if u, err := strconv.ParseUint(s, 10, 64); err == nil {
				return u, nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: dag-json: number %s: %v", ErrDecode, s, err)
		}
		return f, nil
	default:
		return v, nil
	}
}

func fromJSONReserved(inner any) (any, error) {
	switch r := inner.(type) {
	case string:
		c, err := cid.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: dag-json: link: %v", ErrDecode, err)
		}
		return Link(c), nil
	case map[string]any:
		s, ok := r["bytes"].(string)
		if !ok || len(r) != 1 {
			break
		}
		b, err := base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: dag-json: bytes: %v", ErrDecode, err)
		}
		return b, nil
	}
	n, err := fromJSON(inner)
	if err != nil {
		return nil, err
	}
	return map[string]any{"/": n}, nil
}

// MarshalJSON encodes a generic value as dag-json.
func MarshalJSON(v any) ([]byte, error) {
	t, err := toJSON(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("%w: dag-json: %v", ErrEncode, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func toJSON(v any) (any, error) {
	switch x := v.(type) {
	case cid.Cid:
		return Link(x), nil
	case []byte:
		return map[string]any{"/": map[string]any{"bytes": base64.RawStdEncoding.EncodeToString(x)}}, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := toJSON(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: dag-json forbids NaN and infinities", ErrEncode)
		}
		return x, nil
	case nil, bool, string, int, int64, uint64:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: dag-json: unsupported type %T", ErrEncode, v)
	}
}
