package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// ErrMismatch is returned by Verify when bytes do not hash to the CID.
var ErrMismatch = errors.New("cidutil: bytes do not match cid")

// CIDv1SHA256 returns a CIDv1 for data under the given codec with a
// sha2-256 multihash.
func CIDv1SHA256(codec multicodec.Code, data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(uint64(codec), sum), nil
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	return CIDv1SHA256(multicodec.Raw, data)
}

// Verify recomputes the CID of data using id's own prefix (version, codec,
// hash function and length) and reports ErrMismatch if it differs.
//
// This accepts CIDv0 and any multihash function go-multihash can compute.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrMismatch
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrMismatch
	}
	return nil
}

// BlockKey returns a codec-independent key for id: the base58 multihash.
// A CIDv0 and a dag-pb CIDv1 over the same bytes share one key.
func BlockKey(id cid.Cid) string {
	return id.Hash().B58String()
}
