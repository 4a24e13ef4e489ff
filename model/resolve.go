package model

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"xdao.co/docloader/loader"
)

// Resolve runs load for req and folds the outcome into a ResolveResponse.
// It never returns a Go error; failures are reported in the response.
func Resolve(ctx context.Context, load loader.DocumentLoader, req ResolveRequest) ResolveResponse {
	resp := ResolveResponse{URI: req.URI}
	if load == nil {
		resp.Error = NewError(ErrInternal, "missing document loader")
		return resp
	}
	if strings.TrimSpace(req.URI) == "" {
		resp.Error = NewError(ErrInvalidRequest, "missing uri")
		return resp
	}
	if scheme, _, err := loader.SplitURI(req.URI); err == nil {
		resp.Scheme = scheme.Prefix()
	}

	doc, err := load(ctx, req.URI)
	if err != nil {
		resp.Error = FromError(err)
		return resp
	}
	resp.Document = doc.Document
	return resp
}

// ResolveBatch resolves every URI in req concurrently. Results keep request
// order and one failing URI does not stop the others.
func ResolveBatch(ctx context.Context, load loader.DocumentLoader, req BatchRequest) BatchResponse {
	out := BatchResponse{Results: make([]ResolveResponse, len(req.URIs))}

	var g errgroup.Group
	if req.Concurrency > 0 {
		g.SetLimit(req.Concurrency)
	}
	for i, uri := range req.URIs {
		g.Go(func() error {
			out.Results[i] = Resolve(ctx, load, ResolveRequest{URI: uri})
			return nil
		})
	}
	_ = g.Wait()
	return out
}
