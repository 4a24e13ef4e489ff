// Package memory provides a CAS over any go-datastore, defaulting to an
// in-process map.
package memory

import (
	"bytes"
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dsync "github.com/ipfs/go-datastore/sync"
	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/storage"
)

var blocksPrefix = ds.NewKey("/blocks")

// CAS stores blocks in a datastore under /blocks/<multihash>.
type CAS struct {
	store ds.Datastore
}

// New returns an empty, goroutine-safe in-memory CAS.
func New() *CAS {
	return NewWithDatastore(dsync.MutexWrap(ds.NewMapDatastore()))
}

// NewWithDatastore uses d as backing storage. d must be safe for concurrent use.
func NewWithDatastore(d ds.Datastore) *CAS {
	return &CAS{store: d}
}

func (c *CAS) Put(ctx context.Context, codec multicodec.Code, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1SHA256(codec, data)
	if err != nil {
		return cid.Undef, err
	}
	key := keyFor(id)
	existing, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	case !errors.Is(err, ds.ErrNotFound):
		return cid.Undef, err
	}
	if err := c.store.Put(ctx, key, append([]byte(nil), data...)); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.store.Get(ctx, keyFor(id))
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ok, err := c.store.Has(ctx, keyFor(id))
	return err == nil && ok
}

func keyFor(id cid.Cid) ds.Key {
	return blocksPrefix.ChildString(cidutil.BlockKey(id))
}
