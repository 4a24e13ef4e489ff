package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/codec"
	"xdao.co/docloader/dag"
	"xdao.co/docloader/ident"
)

const (
	// DefaultMaxDepth bounds dag-pb traversal in FetchBytes.
	DefaultMaxDepth = 32
	// DefaultMaxBytes bounds the payload FetchBytes assembles.
	DefaultMaxBytes = 64 << 20
)

// BlockStore exposes a CAS through the two retrieval primitives a document
// loader needs: flat bytes by path and structured blocks by identifier.
type BlockStore struct {
	cas      CAS
	maxDepth int
	maxBytes int
}

// NewBlockStore wraps cas.
func NewBlockStore(cas CAS) *BlockStore {
	return &BlockStore{cas: cas, maxDepth: DefaultMaxDepth, maxBytes: DefaultMaxBytes}
}

// WithMaxBytes returns a copy of s whose FetchBytes payloads are limited to n bytes.
func (s *BlockStore) WithMaxBytes(n int) *BlockStore {
	c := *s
	c.maxBytes = n
	return &c
}

// FetchBlock returns the block for id unwrapped from its envelope.
//
// Blocks whose codec has no envelope decoder are returned as raw bytes under
// their declared codec; rejecting them is the caller's decision.
func (s *BlockStore) FetchBlock(ctx context.Context, id ident.Identifier) (codec.Block, error) {
	data, err := s.cas.Get(ctx, id.Cid())
	if err != nil {
		return codec.Block{}, err
	}
	code := id.Codec()
	if !dag.Supported(code) {
		return codec.Block{Value: data, Codec: code}, nil
	}
	v, err := dag.Decode(code, data)
	if err != nil {
		return codec.Block{}, fmt.Errorf("storage: block %s: %w", id, err)
	}
	return codec.Block{Value: v, Codec: code}, nil
}

// FetchBytes returns the bytes at path, where path is "<cid>[/name...]".
//
// Each name after the CID follows the dag-pb link of that name. The result
// is the block's payload: raw bytes as stored, the file content of a UnixFS
// dag-pb node (as written by `ipfs add`), the data of any other dag-pb node
// followed by the payloads of its links in order, or the encoded block for
// other codecs. UnixFS directories are ErrIsDir.
func (s *BlockStore) FetchBytes(ctx context.Context, path string) ([]byte, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	root, err := cid.Decode(segs[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCID, segs[0], err)
	}

	cur := root
	for _, name := range segs[1:] {
		if name == "" {
			continue
		}
		if multicodec.Code(cur.Type()) != multicodec.DagPb {
			return nil, fmt.Errorf("%w: %s at %q", ErrNotDir, cur, name)
		}
		node, err := s.node(ctx, cur)
		if err != nil {
			return nil, err
		}
		link, ok := node.Link(name)
		if !ok {
			return nil, fmt.Errorf("%w: no link %q in %s", ErrNotFound, name, cur)
		}
		cur = link.Hash
	}
	w := &payloadWalk{s: s, seen: map[string][]byte{}}
	return w.payload(ctx, cur, 0)
}

func (s *BlockStore) node(ctx context.Context, id cid.Cid) (dag.PBNode, error) {
	data, err := s.cas.Get(ctx, id)
	if err != nil {
		return dag.PBNode{}, err
	}
	n, err := dag.UnmarshalPB(data)
	if err != nil {
		return dag.PBNode{}, fmt.Errorf("storage: block %s: %w", id, err)
	}
	return n, nil
}

// payloadWalk assembles one FetchBytes result. Shared subtrees are fetched
// once and the total size is capped by maxBytes.
type payloadWalk struct {
	s    *BlockStore
	seen map[string][]byte
}

func (w *payloadWalk) payload(ctx context.Context, id cid.Cid, depth int) ([]byte, error) {
	if depth > w.s.maxDepth {
		return nil, fmt.Errorf("storage: dag-pb depth exceeds %d at %s", w.s.maxDepth, id)
	}
	key := id.KeyString()
	if b, ok := w.seen[key]; ok {
		return b, nil
	}

	var out []byte
	if multicodec.Code(id.Type()) != multicodec.DagPb {
		b, err := w.s.cas.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = b
	} else {
		n, err := w.s.node(ctx, id)
		if err != nil {
			return nil, err
		}
		data := n.Data
		if ufs, err := dag.UnmarshalUnixFS(n.Data); err == nil {
			switch {
			case ufs.Type == dag.UnixFSDirectory || ufs.Type == dag.UnixFSHAMTShard:
				return nil, fmt.Errorf("%w: %s is a unixfs %s", ErrIsDir, id, ufs.Type)
			case !ufs.IsFile():
				return nil, fmt.Errorf("storage: %s is a unixfs %s, not a file", id, ufs.Type)
			}
			data = ufs.Data
		}
		out = append([]byte(nil), data...)
		for _, l := range n.Links {
			b, err := w.payload(ctx, l.Hash, depth+1)
			if err != nil {
				return nil, err
			}
			if len(out)+len(b) > w.s.maxBytes {
				return nil, fmt.Errorf("%w: more than %d bytes under %s", ErrTooLarge, w.s.maxBytes, id)
			}
			out = append(out, b...)
		}
	}
	if len(out) > w.s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes at %s", ErrTooLarge, w.s.maxBytes, id)
	}
	w.seen[key] = out
	return out, nil
}
