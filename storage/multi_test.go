package storage_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"go.uber.org/zap/zaptest"

	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/memory"
	"xdao.co/docloader/storage/testkit"
)

type failingCAS struct{ err error }

func (f failingCAS) Put(context.Context, multicodec.Code, []byte) (cid.Cid, error) {
	return cid.Undef, f.err
}
func (f failingCAS) Get(context.Context, cid.Cid) ([]byte, error) { return nil, f.err }
func (f failingCAS) Has(context.Context, cid.Cid) bool           { return false }

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{memory.New(), memory.New()}, Logger: zaptest.NewLogger(t)}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: memory.New()},
			{Name: "b", CAS: memory.New()},
		}}
	})
}

func TestMultiCAS_FallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	first, second := memory.New(), memory.New()
	data := []byte("only in second")
	id, err := second.Put(ctx, multicodec.Raw, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}, Logger: zaptest.NewLogger(t)}
	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get bytes mismatch")
	}
	if !m.Has(ctx, id) {
		t.Fatalf("Has: expected true")
	}

	if _, err := m.Put(ctx, multicodec.Raw, []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	newID, _ := first.Put(ctx, multicodec.Raw, []byte("new"))
	if second.Has(ctx, newID) {
		t.Fatalf("MultiCAS.Put wrote past the first adapter")
	}
}

func TestMultiCAS_HardErrorStopsFallback(t *testing.T) {
	boom := errors.New("disk on fire")
	ok := memory.New()
	id, err := ok.Put(context.Background(), multicodec.Raw, []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := storage.MultiCAS{Adapters: []storage.CAS{failingCAS{err: boom}, ok}}
	if _, err := m.Get(context.Background(), id); !errors.Is(err, boom) {
		t.Fatalf("Get: got %v want %v", err, boom)
	}
	if _, err := (storage.MultiCAS{}).Put(context.Background(), multicodec.Raw, nil); err == nil {
		t.Fatalf("empty MultiCAS.Put should fail")
	}
}

func TestReplicatingCAS_Errors(t *testing.T) {
	ctx := context.Background()
	if _, _, err := (storage.ReplicatingCAS{}).PutAll(ctx, multicodec.Raw, []byte("x")); err == nil {
		t.Fatalf("expected error with no backends")
	}
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "nil"}}}
	if _, err := r.Put(ctx, multicodec.Raw, []byte("x")); err == nil {
		t.Fatalf("expected error for nil backend")
	}
	boom := errors.New("boom")
	r = storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: memory.New()}, {Name: "b", CAS: failingCAS{err: boom}}}}
	if _, err := r.Put(ctx, multicodec.Raw, []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("Put: got %v want %v", err, boom)
	}
}
