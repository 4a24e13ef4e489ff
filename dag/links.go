package dag

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
)

// Links returns the CIDs a block references, in encounter order.
// dag-cbor and dag-json map entries are visited in sorted key order.
// raw blocks have no links.
func Links(code multicodec.Code, data []byte) ([]cid.Cid, error) {
	switch code {
	case multicodec.Raw:
		return nil, nil
	case multicodec.DagPb:
		n, err := UnmarshalPB(data)
		if err != nil {
			return nil, err
		}
		out := make([]cid.Cid, 0, len(n.Links))
		for _, l := range n.Links {
			out = append(out, l.Hash)
		}
		return out, nil
	case multicodec.DagCbor, multicodec.DagJson:
		v, err := Decode(code, data)
		if err != nil {
			return nil, err
		}
		var out []cid.Cid
		collectLinks(v, &out)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
}

func collectLinks(v any, out *[]cid.Cid) {
	if c, ok := AsLink(v); ok {
		*out = append(*out, c)
		return
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			collectLinks(e, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectLinks(x[k], out)
		}
	}
}
