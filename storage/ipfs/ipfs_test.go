package ipfs

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/testkit"
)

func TestIPFS_Conformance(t *testing.T) {
	bin, err := exec.LookPath("ipfs")
	if err != nil {
		t.Skip("ipfs binary not installed")
	}
	repo := t.TempDir()
	env := options(bin, repo).Env
	cmd := exec.Command(bin, "init", "--empty-repo")
	cmd.Env = env
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ipfs init failed: %v: %s", err, out)
	}
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return New(Options{Bin: bin, Env: env})
	})
}

func TestIPFS_MissingBinary(t *testing.T) {
	cas := New(Options{Bin: filepath.Join(t.TempDir(), "no-such-ipfs")})
	ctx := context.Background()
	if _, err := cas.Put(ctx, multicodec.Raw, []byte("x")); err == nil {
		t.Fatalf("Put: expected error for missing binary")
	}
	if cas.Has(ctx, mustRawCID(t)) {
		t.Fatalf("Has: expected false for missing binary")
	}
	if _, err := cas.Get(ctx, mustRawCID(t)); err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get: got %v, want an exec error", err)
	}
}

func TestIsLikelyNotFound(t *testing.T) {
	if !isLikelyNotFound(errors.New("ipfs: block was not found locally (offline): ipld: could not find bafk: Block not found")) {
		t.Fatalf("expected not-found classification")
	}
	if isLikelyNotFound(errors.New("permission denied")) || isLikelyNotFound(nil) {
		t.Fatalf("unexpected not-found classification")
	}
}

func mustRawCID(t *testing.T) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte("probe"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	return id
}
