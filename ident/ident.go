// Package ident parses content addresses into immutable identifiers.
//
// An Identifier is either fully valid or not constructed at all: Parse never
// returns a partially initialized value.
package ident

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// ErrMalformed is wrapped by every Parse failure.
var ErrMalformed = errors.New("ident: malformed content address")

// Identifier is a parsed content address.
type Identifier struct {
	c        cid.Cid
	hashCode uint64
	hashName string
	digest   []byte
}

// Parse decodes s as a CID (v0 base58 or multibase-prefixed v1).
func Parse(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, fmt.Errorf("%w: empty identifier", ErrMalformed)
	}
	c, err := cid.Decode(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return FromCid(c)
}

// FromCid builds an Identifier from an already decoded CID.
func FromCid(c cid.Cid) (Identifier, error) {
	if !c.Defined() {
		return Identifier{}, fmt.Errorf("%w: undefined cid", ErrMalformed)
	}
	dmh, err := multihash.Decode(c.Hash())
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Identifier{
		c:        c,
		hashCode: dmh.Code,
		hashName: dmh.Name,
		digest:   dmh.Digest,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identifier) Defined() bool { return id.c.Defined() }

func (id Identifier) Cid() cid.Cid { return id.c }

func (id Identifier) String() string { return id.c.String() }

func (id Identifier) Version() uint64 { return id.c.Version() }

// Codec is the encoding tag carried by the address.
func (id Identifier) Codec() multicodec.Code { return multicodec.Code(id.c.Type()) }

// HashCode is the multihash function code (e.g. 0x12 for sha2-256).
func (id Identifier) HashCode() uint64 { return id.hashCode }

// HashName is the registered name of the hash function, or "" if unknown.
func (id Identifier) HashName() string { return id.hashName }

// Digest returns a copy of the raw digest bytes.
func (id Identifier) Digest() []byte {
	return append([]byte(nil), id.digest...)
}

// Equals reports whether both identifiers name the same CID.
func (id Identifier) Equals(other Identifier) bool { return id.c.Equals(other.c) }
