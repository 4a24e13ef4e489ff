package dag

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"
)

// PBNode is a decoded dag-pb node.
//
// Data is nil when the field is absent from the wire form.
type PBNode struct {
	Links []PBLink
	Data  []byte
}

// PBLink is a named, sized link inside a PBNode.
type PBLink struct {
	Hash  cid.Cid
	Name  string
	Tsize uint64
}

// Link returns the first link named name.
func (n PBNode) Link(name string) (PBLink, bool) {
	for _, l := range n.Links {
		if l.Name == name {
			return l, true
		}
	}
	return PBLink{}, false
}

// dag-pb field numbers.
const (
	pbNodeData  protowire.Number = 1
	pbNodeLinks protowire.Number = 2

	pbLinkHash  protowire.Number = 1
	pbLinkName  protowire.Number = 2
	pbLinkTsize protowire.Number = 3
)

// UnmarshalPB decodes a dag-pb block.
func UnmarshalPB(b []byte) (PBNode, error) {
	var n PBNode
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return PBNode{}, pbErr(protowire.ParseError(l))
		}
		b = b[l:]
		if typ != protowire.BytesType {
			return PBNode{}, fmt.Errorf("%w: dag-pb field %d has wire type %d", ErrDecode, num, typ)
		}
		v, l := protowire.ConsumeBytes(b)
		if l < 0 {
			return PBNode{}, pbErr(protowire.ParseError(l))
		}
		b = b[l:]

		switch num {
		case pbNodeData:
			if n.Data != nil {
				return PBNode{}, fmt.Errorf("%w: duplicate dag-pb Data field", ErrDecode)
			}
			n.Data = append([]byte{}, v...)
		case pbNodeLinks:
			if n.Data != nil {
				return PBNode{}, fmt.Errorf("%w: dag-pb Links after Data", ErrDecode)
			}
			link, err := unmarshalPBLink(v)
			if err != nil {
				return PBNode{}, err
			}
			n.Links = append(n.Links, link)
		default:
			return PBNode{}, fmt.Errorf("%w: unexpected dag-pb field %d", ErrDecode, num)
		}
	}
	return n, nil
}

func unmarshalPBLink(b []byte) (PBLink, error) {
	var link PBLink
	var sawHash bool
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return PBLink{}, pbErr(protowire.ParseError(l))
		}
		b = b[l:]
		switch {
		case num == pbLinkHash && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return PBLink{}, pbErr(protowire.ParseError(l))
			}
			b = b[l:]
			c, err := cid.Cast(v)
			if err != nil {
				return PBLink{}, fmt.Errorf("%w: dag-pb link hash: %v", ErrDecode, err)
			}
			link.Hash = c
			sawHash = true
		case num == pbLinkName && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return PBLink{}, pbErr(protowire.ParseError(l))
			}
			b = b[l:]
			link.Name = string(v)
		case num == pbLinkTsize && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return PBLink{}, pbErr(protowire.ParseError(l))
			}
			b = b[l:]
			link.Tsize = v
		default:
			return PBLink{}, fmt.Errorf("%w: unexpected dag-pb link field %d", ErrDecode, num)
		}
	}
	if !sawHash {
		return PBLink{}, fmt.Errorf("%w: dag-pb link without hash", ErrDecode)
	}
	return link, nil
}

// MarshalPB encodes n in canonical dag-pb field order (links, then data).
func MarshalPB(n PBNode) ([]byte, error) {
	var out []byte
	for i, link := range n.Links {
		if !link.Hash.Defined() {
			return nil, fmt.Errorf("%w: dag-pb link %d has no hash", ErrEncode, i)
		}
		var lb []byte
		lb = protowire.AppendTag(lb, pbLinkHash, protowire.BytesType)
		lb = protowire.AppendBytes(lb, link.Hash.Bytes())
		if link.Name != "" {
			lb = protowire.AppendTag(lb, pbLinkName, protowire.BytesType)
			lb = protowire.AppendString(lb, link.Name)
		}
		if link.Tsize != 0 {
			lb = protowire.AppendTag(lb, pbLinkTsize, protowire.VarintType)
			lb = protowire.AppendVarint(lb, link.Tsize)
		}
		out = protowire.AppendTag(out, pbNodeLinks, protowire.BytesType)
		out = protowire.AppendBytes(out, lb)
	}
	if n.Data != nil {
		out = protowire.AppendTag(out, pbNodeData, protowire.BytesType)
		out = protowire.AppendBytes(out, n.Data)
	}
	return out, nil
}

func pbErr(err error) error {
	return fmt.Errorf("%w: dag-pb: %v", ErrDecode, err)
}
