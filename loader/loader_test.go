package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-test/deep"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"

	"xdao.co/docloader/codec"
	"xdao.co/docloader/dag"
	"xdao.co/docloader/ident"
)

type fakeStore struct {
	mu     sync.Mutex
	bytes  map[string][]byte
	blocks map[string]codec.Block
	err    error

	byteCalls  []string
	blockCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{bytes: map[string][]byte{}, blocks: map[string]codec.Block{}}
}

func (s *fakeStore) FetchBytes(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byteCalls = append(s.byteCalls, path)
	if s.err != nil {
		return nil, s.err
	}
	b, ok := s.bytes[path]
	if !ok {
		return nil, errNotFound
	}
	return b, nil
}

func (s *fakeStore) FetchBlock(ctx context.Context, id ident.Identifier) (codec.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockCalls = append(s.blockCalls, id.String())
	if s.err != nil {
		return codec.Block{}, s.err
	}
	b, ok := s.blocks[id.String()]
	if !ok {
		return codec.Block{}, errNotFound
	}
	return b, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byteCalls) + len(s.blockCalls)
}

var errNotFound = errors.New("fake: not found")

func testCID(t *testing.T, codec uint64, data string) string {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	return cid.NewCidV1(codec, mh).String()
}

func TestResolve_DagCBORContext(t *testing.T) {
	store := newFakeStore()
	id := testCID(t, cid.DagCBOR, "context")
	value := map[string]any{"schema": "http://schema.org/"}
	store.blocks[id] = codec.Block{Value: value, Codec: multicodec.DagCbor}

	load := MakeDocumentResolver(store)
	got, err := load(context.Background(), "dweb:/ipld/"+id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := deep.Equal(got, &RemoteDocument{Document: value}); diff != nil {
		t.Fatalf("document: %v", diff)
	}
}

func TestResolve_IPFSJSON(t *testing.T) {
	store := newFakeStore()
	store.bytes["Qm123"] = []byte(`{"a":1}`)

	got, err := New(store).Resolve(context.Background(), "ipfs://Qm123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := deep.Equal(got.Document, any(map[string]any{"a": float64(1)})); diff != nil {
		t.Fatalf("document: %v", diff)
	}
}

func TestResolve_IPFSInvalidJSON(t *testing.T) {
	store := newFakeStore()
	store.bytes["Qm123"] = []byte(`{invalid`)

	_, err := New(store).Resolve(context.Background(), "ipfs://Qm123")
	if !IsKind(err, KindDocumentParse) {
		t.Fatalf("got %v want %s", err, KindDocumentParse)
	}
	if !errors.Is(err, codec.ErrParse) {
		t.Fatalf("expected codec.ErrParse in chain: %v", err)
	}
}

func TestResolve_UnrecognizedSchemeDoesNoIO(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	for _, uri := range []string{
		"",
		"http://example.com/ctx.jsonld",
		"IPFS://Qm123",
		"ipns://example.com",
		"dweb:/ipns/example.com",
		"ipld:/bafy",
		" ipfs://Qm123",
	} {
		_, err := l.Resolve(context.Background(), uri)
		if !IsKind(err, KindUnrecognizedScheme) {
			t.Fatalf("Resolve(%q): got %v want %s", uri, err, KindUnrecognizedScheme)
		}
	}
	if n := store.calls(); n != 0 {
		t.Fatalf("store called %d times for unrecognized schemes", n)
	}
}

// "bafyabc" is a placeholder in the shape of a CIDv1 but is not a decodable
// CID, so it is malformed. Resolving a real dag-cbor CID under ipld:// and
// dweb:/ipld/ is covered by TestResolve_DagCBORContext and, against a real
// block store, by TestBlockStore_WithLoader in package storage.
func TestResolve_MalformedIdentifierDoesNoIO(t *testing.T) {
	store := newFakeStore()
	for _, uri := range []string{"ipld://not-a-valid-cid", "dweb:/ipld/", "ipld://bafyabc"} {
		_, err := New(store).Resolve(context.Background(), uri)
		if !IsKind(err, KindMalformedIdentifier) {
			t.Fatalf("Resolve(%q): got %v want %s", uri, err, KindMalformedIdentifier)
		}
		if !errors.Is(err, ident.ErrMalformed) {
			t.Fatalf("Resolve(%q): expected ident.ErrMalformed in chain", uri)
		}
	}
	if n := store.calls(); n != 0 {
		t.Fatalf("store called %d times for malformed identifiers", n)
	}
}

func TestResolve_PrefixStrippingIsExact(t *testing.T) {
	blockID := testCID(t, cid.DagJSON, "strip")
	cases := []struct {
		uri       string
		wantBytes string
		wantBlock string
	}{
		{uri: "ipfs://QmABC", wantBytes: "QmABC"},
		{uri: "dweb:/ipfs/QmABC/doc.json", wantBytes: "QmABC/doc.json"},
		{uri: "ipld://" + blockID, wantBlock: blockID},
		{uri: "dweb:/ipld/" + blockID, wantBlock: blockID},
	}
	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			store := newFakeStore()
			_, _ = New(store).Resolve(context.Background(), tc.uri)
			if tc.wantBytes != "" {
				if diff := deep.Equal(store.byteCalls, []string{tc.wantBytes}); diff != nil {
					t.Fatalf("FetchBytes calls: %v", diff)
				}
				if len(store.blockCalls) != 0 {
					t.Fatalf("unexpected FetchBlock calls: %v", store.blockCalls)
				}
				return
			}
			if diff := deep.Equal(store.blockCalls, []string{tc.wantBlock}); diff != nil {
				t.Fatalf("FetchBlock calls: %v", diff)
			}
			if len(store.byteCalls) != 0 {
				t.Fatalf("unexpected FetchBytes calls: %v", store.byteCalls)
			}
		})
	}
}

func TestResolve_RoundTripThroughBytes(t *testing.T) {
	doc := map[string]any{
		"@context": "dweb:/ipld/bafy",
		"prov:wasAttributedTo": map[string]any{
			"@type":       "schema:Person",
			"schema:name": "Eve",
		},
		"@graph": []any{
			map[string]any{"@type": "schema:Person", "schema:name": "Alice", "age": float64(30)},
			true,
			nil,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	store := newFakeStore()
	store.bytes["QmDoc"] = b

	got, err := New(store).Resolve(context.Background(), "dweb:/ipfs/QmDoc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := deep.Equal(got.Document, any(doc)); diff != nil {
		t.Fatalf("round trip: %v", diff)
	}
}

func TestResolve_BlockCodecs(t *testing.T) {
	doc := map[string]any{"k": "v"}
	cases := []struct {
		name  string
		block codec.Block
		want  any
		kind  Kind
	}{
		{name: "dag-cbor", block: codec.Block{Value: doc, Codec: multicodec.DagCbor}, want: doc},
		{name: "dag-json", block: codec.Block{Value: doc, Codec: multicodec.DagJson}, want: doc},
		{name: "dag-pb", block: codec.Block{Value: dag.PBNode{Data: []byte(`{"k":"v"}`)}, Codec: multicodec.DagPb}, want: doc},
		{name: "raw", block: codec.Block{Value: []byte(`{"k":"v"}`), Codec: multicodec.Raw}, want: doc},
		{name: "raw invalid", block: codec.Block{Value: []byte(`{`), Codec: multicodec.Raw}, kind: KindDocumentParse},
		{name: "git-raw", block: codec.Block{Value: []byte(`{}`), Codec: multicodec.GitRaw}, kind: KindUnsupportedCodec},
		{name: "unknown", block: codec.Block{Value: doc, Codec: multicodec.Code(0x3fffff)}, kind: KindUnsupportedCodec},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			id := testCID(t, cid.DagCBOR, tc.name)
			store.blocks[id] = tc.block

			got, err := New(store).Resolve(context.Background(), "ipld://"+id)
			if tc.kind != "" {
				if !IsKind(err, tc.kind) {
					t.Fatalf("got %v want %s", err, tc.kind)
				}
				if got != nil {
					t.Fatalf("expected no document alongside an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if diff := deep.Equal(got.Document, any(tc.want)); diff != nil {
				t.Fatalf("document: %v", diff)
			}
		})
	}
}

func TestResolve_StoreErrorPropagatesUnchanged(t *testing.T) {
	storeErr := fmt.Errorf("connection reset: %w", errNotFound)
	store := newFakeStore()
	store.err = storeErr

	for _, uri := range []string{"ipfs://QmX", "ipld://" + testCID(t, cid.Raw, "x")} {
		_, err := New(store).Resolve(context.Background(), uri)
		if !IsKind(err, KindStoreFetch) {
			t.Fatalf("Resolve(%q): got %v want %s", uri, err, KindStoreFetch)
		}
		var le *Error
		if !errors.As(err, &le) || le.Cause != storeErr {
			t.Fatalf("Resolve(%q): store error was not preserved", uri)
		}
		if !errors.Is(err, errNotFound) {
			t.Fatalf("Resolve(%q): errors.Is lost the store sentinel", uri)
		}
	}
	if n := store.calls(); n != 2 {
		t.Fatalf("store calls: got %d want 2 (no retries)", n)
	}
}

func TestResolve_Concurrent(t *testing.T) {
	store := newFakeStore()
	store.bytes["good"] = []byte(`{"ok":true}`)
	store.bytes["bad"] = []byte(`nope`)
	l := New(store)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			doc, err := l.Resolve(context.Background(), "ipfs://good")
			if err != nil {
				errs <- err
				return
			}
			if diff := deep.Equal(doc.Document, any(map[string]any{"ok": true})); diff != nil {
				errs <- fmt.Errorf("document: %v", diff)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Resolve(context.Background(), "ipfs://bad"); !IsKind(err, KindDocumentParse) {
				errs <- fmt.Errorf("bad: got %v", err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestNew_NilStorePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(nil)
}
