package storage

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
)

// CAS is a minimal content-addressable block store.
//
// Contract:
// - Put MUST be idempotent and returns the CIDv1 (sha2-256) of the bytes under codec.
// - Stored objects MUST be immutable.
// - Blocks are keyed by multihash, so a CIDv0 finds the same bytes as its CIDv1.
// - Get MUST verify the bytes against the requested CID and return ErrNotFound when absent.
type CAS interface {
	Put(ctx context.Context, codec multicodec.Code, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
