package loader

import (
	"context"
	"errors"

	"xdao.co/docloader/codec"
	"xdao.co/docloader/ident"
)

// Store is the retrieval surface the loader needs from a content-addressed
// store. Implementations must be safe for concurrent use.
type Store interface {
	// FetchBytes returns the flat bytes stored under a store-local path.
	FetchBytes(ctx context.Context, path string) ([]byte, error)
	// FetchBlock returns the block for id, unwrapped from its envelope,
	// together with the codec it was stored under.
	FetchBlock(ctx context.Context, id ident.Identifier) (codec.Block, error)
}

// RemoteDocument is a resolved document.
type RemoteDocument struct {
	Document any
}

// DocumentLoader is the shape linked-data processors plug in to load remote
// contexts and documents.
type DocumentLoader func(ctx context.Context, uri string) (*RemoteDocument, error)

// Loader dispatches URIs to fetch strategies.
type Loader struct {
	store  Store
	codecs *codec.Registry
}

// New returns a Loader bound to store. It panics if store is nil.
func New(store Store) *Loader {
	if store == nil {
		panic("loader: nil store")
	}
	return &Loader{store: store, codecs: codec.Default()}
}

// MakeDocumentResolver returns a DocumentLoader bound to store.
func MakeDocumentResolver(store Store) DocumentLoader {
	return New(store).Resolve
}

// Resolve loads the document named by uri.
func (l *Loader) Resolve(ctx context.Context, uri string) (*RemoteDocument, error) {
	e, ok := match(uri)
	if !ok {
		return nil, newError(KindUnrecognizedScheme, uri, "unrecognized URI scheme", nil)
	}
	rest := uri[len(e.prefix):]

	var (
		doc any
		err error
	)
	switch e.strategy {
	case strategyLinkedData:
		doc, err = l.loadBlock(ctx, uri, rest)
	case strategyBytes:
		doc, err = l.loadBytes(ctx, uri, rest)
	default:
		panic("loader: scheme " + e.prefix + " has no fetch strategy")
	}
	if err != nil {
		return nil, err
	}
	return &RemoteDocument{Document: doc}, nil
}

func (l *Loader) loadBlock(ctx context.Context, uri, rest string) (any, error) {
	id, err := ident.Parse(rest)
	if err != nil {
		return nil, newError(KindMalformedIdentifier, uri, "malformed content identifier", err)
	}
	block, err := l.store.FetchBlock(ctx, id)
	if err != nil {
		return nil, newError(KindStoreFetch, uri, "fetch block "+id.String(), err)
	}
	doc, err := l.codecs.Decode(block)
	if err != nil {
		if errors.Is(err, codec.ErrUnsupportedCodec) {
			return nil, newError(KindUnsupportedCodec, uri, "unsupported block codec", err)
		}
		return nil, newError(KindDocumentParse, uri, "decode "+block.Codec.String()+" block", err)
	}
	return doc, nil
}

func (l *Loader) loadBytes(ctx context.Context, uri, path string) (any, error) {
	b, err := l.store.FetchBytes(ctx, path)
	if err != nil {
		return nil, newError(KindStoreFetch, uri, "fetch bytes", err)
	}
	doc, err := codec.ParseJSON(b)
	if err != nil {
		return nil, newError(KindDocumentParse, uri, "parse document", err)
	}
	return doc, nil
}
