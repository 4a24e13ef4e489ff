package ident

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

func sumCID(t *testing.T, codec uint64, data []byte) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	return cid.NewCidV1(codec, mh)
}

func TestParse_V1(t *testing.T) {
	data := []byte(`{"schema":"http://schema.org/"}`)
	c := sumCID(t, cid.DagCBOR, data)

	id, err := Parse(c.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("expected defined identifier")
	}
	if id.Codec() != multicodec.DagCbor {
		t.Fatalf("Codec: got %s want %s", id.Codec(), multicodec.DagCbor)
	}
	if id.HashCode() != multihash.SHA2_256 {
		t.Fatalf("HashCode: got %#x want %#x", id.HashCode(), multihash.SHA2_256)
	}
	if id.HashName() != "sha2-256" {
		t.Fatalf("HashName: got %q", id.HashName())
	}
	want := sha256.Sum256(data)
	if !bytes.Equal(id.Digest(), want[:]) {
		t.Fatalf("Digest mismatch")
	}
	if id.String() != c.String() {
		t.Fatalf("String: got %s want %s", id.String(), c.String())
	}
}

func TestParse_V0(t *testing.T) {
	mh, err := multihash.Sum([]byte("hello"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	c := cid.NewCidV0(mh)

	id, err := Parse(c.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Version() != 0 {
		t.Fatalf("Version: got %d want 0", id.Version())
	}
	if id.Codec() != multicodec.DagPb {
		t.Fatalf("Codec: got %s want dag-pb", id.Codec())
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, s := range []string{"", "not-a-valid-cid", "bafyabc"} {
		t.Run(s, func(t *testing.T) {
			id, err := Parse(s)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse(%q): got err=%v want ErrMalformed", s, err)
			}
			if id.Defined() {
				t.Fatalf("Parse(%q) returned a defined identifier on failure", s)
			}
		})
	}
}

func TestFromCid_Undef(t *testing.T) {
	if _, err := FromCid(cid.Undef); !errors.Is(err, ErrMalformed) {
		t.Fatalf("FromCid(Undef): got %v want ErrMalformed", err)
	}
}

func TestDigest_IsCopy(t *testing.T) {
	id, err := FromCid(sumCID(t, cid.Raw, []byte("x")))
	if err != nil {
		t.Fatalf("FromCid: %v", err)
	}
	d := id.Digest()
	d[0] ^= 0xff
	if bytes.Equal(d, id.Digest()) {
		t.Fatalf("Digest exposed internal state")
	}
}
