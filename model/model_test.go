package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-test/deep"
	"github.com/multiformats/go-multicodec"

	"xdao.co/docloader/loader"
	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/memory"
)

func TestSnapshot_ResolveResponse_JSONShape(t *testing.T) {
	resp := ResolveResponse{
		URI:      "ipfs://doc",
		Scheme:   "ipfs://",
		Document: map[string]any{"name": "x"},
	}
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}
	const want = "{\n" +
		"  \"uri\": \"ipfs://doc\",\n" +
		"  \"scheme\": \"ipfs://\",\n" +
		"  \"document\": {\n" +
		"    \"name\": \"x\"\n" +
		"  }\n" +
		"}"
	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}

	failed := ResolveResponse{URI: "http://x", Error: NewError(ErrUnrecognizedScheme, "nope")}
	b, err = json.MarshalIndent(failed, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}
	const wantErr = "{\n" +
		"  \"uri\": \"http://x\",\n" +
		"  \"error\": {\n" +
		"    \"code\": \"UNRECOGNIZED_SCHEME\",\n" +
		"    \"message\": \"nope\"\n" +
		"  }\n" +
		"}"
	if string(b) != wantErr {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"kind", &loader.Error{Kind: loader.KindStoreFetch, Cause: storage.ErrNotFound}, ErrStoreFetch},
		{"wrapped kind", errors.Join(errors.New("ctx"), &loader.Error{Kind: loader.KindDocumentParse}), ErrDocumentParse},
		{"coded", NewError(ErrInvalidRequest, "bad"), ErrInvalidRequest},
		{"canceled", context.Canceled, ErrCanceled},
		{"other", errors.New("boom"), ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromError(tc.err)
			if got == nil || got.Code != tc.want {
				t.Fatalf("code: got %v want %s", got, tc.want)
			}
		})
	}
	if FromError(nil) != nil {
		t.Fatalf("FromError(nil) should be nil")
	}
}

func TestResolve_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cas := memory.New()
	id, err := cas.Put(ctx, multicodec.DagJson, []byte(`{"@context":{"name":"http://schema.org/name"}}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	load := loader.MakeDocumentResolver(storage.NewBlockStore(cas))

	resp := Resolve(ctx, load, ResolveRequest{URI: "ipld://" + id.String()})
	if !resp.OK() {
		t.Fatalf("Resolve: %v", resp.Error)
	}
	if resp.Scheme != "ipld://" {
		t.Fatalf("scheme: got %q want %q", resp.Scheme, "ipld://")
	}
	want := map[string]any{"@context": map[string]any{"name": "http://schema.org/name"}}
	if diff := deep.Equal(resp.Document, any(want)); diff != nil {
		t.Fatalf("document mismatch: %v", diff)
	}

	resp = Resolve(ctx, load, ResolveRequest{URI: "ipld://not-a-cid"})
	if resp.Error == nil || resp.Error.Code != ErrMalformedIdentifier {
		t.Fatalf("error: got %v want %s", resp.Error, ErrMalformedIdentifier)
	}
	if resp.Document != nil {
		t.Fatalf("document should be empty on error")
	}

	resp = Resolve(ctx, load, ResolveRequest{URI: "  "})
	if resp.Error == nil || resp.Error.Code != ErrInvalidRequest {
		t.Fatalf("error: got %v want %s", resp.Error, ErrInvalidRequest)
	}

	resp = Resolve(ctx, nil, ResolveRequest{URI: "ipfs://x"})
	if resp.Error == nil || resp.Error.Code != ErrInternal {
		t.Fatalf("error: got %v want %s", resp.Error, ErrInternal)
	}
}

func TestResolveBatch_KeepsOrder(t *testing.T) {
	var calls atomic.Int32
	load := func(ctx context.Context, uri string) (*loader.RemoteDocument, error) {
		calls.Add(1)
		if uri == "ipfs://bad" {
			return nil, &loader.Error{Kind: loader.KindDocumentParse, URI: uri, Message: "parse document"}
		}
		return &loader.RemoteDocument{Document: uri}, nil
	}

	uris := []string{"ipfs://a", "ipfs://bad", "ipfs://c", "ftp://d"}
	out := ResolveBatch(context.Background(), load, BatchRequest{URIs: uris, Concurrency: 2})
	if len(out.Results) != len(uris) {
		t.Fatalf("results: got %d want %d", len(out.Results), len(uris))
	}
	for i, r := range out.Results {
		if r.URI != uris[i] {
			t.Fatalf("result[%d] uri: got %q want %q", i, r.URI, uris[i])
		}
	}
	if out.Results[0].Document != "ipfs://a" || out.Results[2].Document != "ipfs://c" {
		t.Fatalf("unexpected documents: %+v", out.Results)
	}
	if out.Results[1].Error == nil || out.Results[1].Error.Code != ErrDocumentParse {
		t.Fatalf("result[1] error: got %v", out.Results[1].Error)
	}
	if out.Results[3].Scheme != "" {
		t.Fatalf("result[3] scheme: got %q want empty", out.Results[3].Scheme)
	}
	if got := calls.Load(); got != int32(len(uris)) {
		t.Fatalf("loader calls: got %d want %d", got, len(uris))
	}
}
