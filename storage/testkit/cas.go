package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		for _, codec := range []multicodec.Code{multicodec.Raw, multicodec.DagCbor, multicodec.DagJson, multicodec.DagPb} {
			cas := newCAS(t)
			want := []byte("hello, " + codec.String())

			id, err := cas.Put(ctx, codec, want)
			if err != nil {
				t.Fatalf("Put(%s) failed: %v", codec, err)
			}
			wantID, err := cidutil.CIDv1SHA256(codec, want)
			if err != nil {
				t.Fatalf("CIDv1SHA256 failed: %v", err)
			}
			if !id.Equals(wantID) {
				t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
			}

			got, err := cas.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("Get bytes mismatch")
			}
			if err := cidutil.Verify(id, got); err != nil {
				t.Fatalf("Get returned bytes not matching requested CID: %v", err)
			}
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, multicodec.Raw, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(ctx, multicodec.Raw, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("CIDv0FindsDagPB", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("dag-pb block")
		id, err := cas.Put(ctx, multicodec.DagPb, b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		v0 := cid.NewCidV0(id.Hash())
		got, err := cas.Get(ctx, v0)
		if err != nil {
			t.Fatalf("Get(v0) failed: %v", err)
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("Get(v0) bytes mismatch")
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		_, err = cas.Put(ctx, multicodec.Raw, b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(ctx, id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}
