// Package codec maps a block's codec tag to the decoder that turns the
// store-supplied value into a document.
//
// The registry is closed: it covers exactly raw, dag-pb, dag-cbor and
// dag-json. Supporting another codec means adding an entry to the table in
// NewRegistry, not registering one at runtime.
package codec

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/dag"
)

var (
	// ErrUnsupportedCodec is returned for codec tags outside the registry.
	ErrUnsupportedCodec = errors.New("codec: unsupported codec")
	// ErrParse is wrapped by every document parse failure.
	ErrParse = errors.New("codec: document parse failed")
)

// Block is a structured block as returned by a store: the value already
// unwrapped from its envelope, plus the codec it was stored under.
type Block struct {
	Value any
	Codec multicodec.Code
}

// Decoder turns a block value into a document.
type Decoder func(value any) (any, error)

type entry struct {
	code   multicodec.Code
	decode Decoder
}

// Registry is an immutable codec → decoder table.
type Registry struct {
	entries  []entry
	decoders map[multicodec.Code]Decoder
}

// NewRegistry builds the fixed decoder table.
func NewRegistry() *Registry {
	entries := []entry{
		{multicodec.Raw, decodeRaw},
		{multicodec.DagPb, decodeDagPB},
		{multicodec.DagCbor, passThrough},
		{multicodec.DagJson, passThrough},
	}
	r := &Registry{
		entries:  entries,
		decoders: make(map[multicodec.Code]Decoder, len(entries)),
	}
	for _, e := range entries {
		r.decoders[e.code] = e.decode
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the shared registry. It is safe for concurrent use.
func Default() *Registry { return defaultRegistry }

// Lookup returns the decoder for code.
func (r *Registry) Lookup(code multicodec.Code) (Decoder, error) {
	d, ok := r.decoders[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s (0x%x)", ErrUnsupportedCodec, code, uint64(code))
	}
	return d, nil
}

// Decode runs the decoder registered for b.Codec.
func (r *Registry) Decode(b Block) (any, error) {
	d, err := r.Lookup(b.Codec)
	if err != nil {
		return nil, err
	}
	return d(b.Value)
}

// Codecs lists the registered codecs in table order.
func (r *Registry) Codecs() []multicodec.Code {
	out := make([]multicodec.Code, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.code)
	}
	return out
}

// PassThrough reports whether values of code are already documents.
func PassThrough(code multicodec.Code) bool {
	return code == multicodec.DagCbor || code == multicodec.DagJson
}

func passThrough(value any) (any, error) { return value, nil }

func decodeRaw(value any) (any, error) {
	switch v := value.(type) {
	case []byte:
		return ParseJSON(v)
	case string:
		return ParseJSON([]byte(v))
	default:
		return nil, fmt.Errorf("%w: raw block value is %T, want bytes", ErrParse, value)
	}
}

func decodeDagPB(value any) (any, error) {
	data, err := pbData(value)
	if err != nil {
		return nil, err
	}
	return decodeRaw(data)
}

// pbData extracts the payload of a dag-pb node, unwrapping UnixFS file
// framing. Stores may hand the node over as a dag.PBNode or as a generic
// record with a Data field.
func pbData(value any) ([]byte, error) {
	switch n := value.(type) {
	case dag.PBNode:
		return n.FileData(), nil
	case *dag.PBNode:
		if n == nil {
			return nil, fmt.Errorf("%w: nil dag-pb node", ErrParse)
		}
		return n.FileData(), nil
	case map[string]any:
		for _, key := range []string{"Data", "data"} {
			switch d := n[key].(type) {
			case []byte:
				return d, nil
			case string:
				return []byte(d), nil
			}
		}
		return nil, fmt.Errorf("%w: dag-pb record has no data field", ErrParse)
	default:
		return nil, fmt.Errorf("%w: dag-pb value is %T", ErrParse, value)
	}
}
