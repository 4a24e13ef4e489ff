package dag

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// UnixFSType is the kind of a UnixFS node.
type UnixFSType uint64

const (
	UnixFSRaw UnixFSType = iota
	UnixFSDirectory
	UnixFSFile
	UnixFSMetadata
	UnixFSSymlink
	UnixFSHAMTShard
)

func (t UnixFSType) String() string {
	switch t {
	case UnixFSRaw:
		return "raw"
	case UnixFSDirectory:
		return "directory"
	case UnixFSFile:
		return "file"
	case UnixFSMetadata:
		return "metadata"
	case UnixFSSymlink:
		return "symlink"
	case UnixFSHAMTShard:
		return "hamt-shard"
	default:
		return fmt.Sprintf("unixfs-type(%d)", uint64(t))
	}
}

// UnixFS is the message kubo stores in the Data field of dag-pb nodes it
// writes for files and directories.
type UnixFS struct {
	Type       UnixFSType
	Data       []byte
	FileSize   uint64
	BlockSizes []uint64
}

// IsFile reports whether the node carries file content (file or raw leaf).
func (u UnixFS) IsFile() bool {
	return u.Type == UnixFSFile || u.Type == UnixFSRaw
}

// UnixFS field numbers.
const (
	ufsType       protowire.Number = 1
	ufsData       protowire.Number = 2
	ufsFileSize   protowire.Number = 3
	ufsBlockSizes protowire.Number = 4
	ufsHashType   protowire.Number = 5
	ufsFanout     protowire.Number = 6
	ufsMode       protowire.Number = 7
	ufsMtime      protowire.Number = 8
)

// UnmarshalUnixFS decodes the Data field of a dag-pb node as a UnixFS
// message. It fails unless b is a well-formed message with a known Type,
// so callers can use it to tell UnixFS nodes from plain dag-pb data.
func UnmarshalUnixFS(b []byte) (UnixFS, error) {
	var u UnixFS
	sawType := false
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return UnixFS{}, ufsErr(protowire.ParseError(l))
		}
		b = b[l:]

		switch {
		case num == ufsType && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
			if v > uint64(UnixFSHAMTShard) {
				return UnixFS{}, fmt.Errorf("%w: unixfs: unknown type %d", ErrDecode, v)
			}
			u.Type = UnixFSType(v)
			sawType = true
		case num == ufsData && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
			u.Data = append([]byte{}, v...)
		case num == ufsFileSize && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
			u.FileSize = v
		case num == ufsBlockSizes && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
			u.BlockSizes = append(u.BlockSizes, v)
		case num == ufsBlockSizes && typ == protowire.BytesType:
			packed, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return UnixFS{}, ufsErr(protowire.ParseError(n))
				}
				packed = packed[n:]
				u.BlockSizes = append(u.BlockSizes, v)
			}
		case (num == ufsHashType || num == ufsFanout || num == ufsMode) && typ == protowire.VarintType,
			num == ufsMtime && typ == protowire.BytesType:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return UnixFS{}, ufsErr(protowire.ParseError(l))
			}
			b = b[l:]
		default:
			return UnixFS{}, fmt.Errorf("%w: unixfs: unexpected field %d (wire type %d)", ErrDecode, num, typ)
		}
	}
	if !sawType {
		return UnixFS{}, fmt.Errorf("%w: unixfs: missing type", ErrDecode)
	}
	return u, nil
}

// MarshalUnixFS encodes u the way kubo writes file nodes.
func MarshalUnixFS(u UnixFS) []byte {
	var out []byte
	out = protowire.AppendTag(out, ufsType, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(u.Type))
	if len(u.Data) > 0 {
		out = protowire.AppendTag(out, ufsData, protowire.BytesType)
		out = protowire.AppendBytes(out, u.Data)
	}
	if u.IsFile() {
		out = protowire.AppendTag(out, ufsFileSize, protowire.VarintType)
		out = protowire.AppendVarint(out, u.FileSize)
	}
	for _, s := range u.BlockSizes {
		out = protowire.AppendTag(out, ufsBlockSizes, protowire.VarintType)
		out = protowire.AppendVarint(out, s)
	}
	return out
}

// FileData returns the content bytes of n: the file data when n.Data is a
// UnixFS file or raw message, and n.Data unchanged otherwise.
func (n PBNode) FileData() []byte {
	if u, err := UnmarshalUnixFS(n.Data); err == nil && u.IsFile() {
		return u.Data
	}
	return n.Data
}

// UnixFSFileNode returns a single-block dag-pb node holding data as a
// UnixFS file, the shape `ipfs add` produces for small files.
func UnixFSFileNode(data []byte) PBNode {
	return PBNode{Data: MarshalUnixFS(UnixFS{
		Type:     UnixFSFile,
		Data:     data,
		FileSize: uint64(len(data)),
	})}
}

func ufsErr(err error) error {
	return fmt.Errorf("%w: unixfs: %v", ErrDecode, err)
}
