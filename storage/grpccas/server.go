package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS

	Logger  *zap.Logger
	Metrics *Metrics
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (out *wrapperspb.StringValue, err error) {
	start := time.Now()
	b := in.GetValue()
	defer func() { s.done("Put", start, len(b), err) }()

	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	codec, err := codecFromContext(ctx)
	if err != nil {
		return nil, err
	}
	expected, err := cidutil.CIDv1SHA256(codec, b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.CAS.Put(ctx, codec, b)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Equals(expected) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (out *wrapperspb.BytesValue, err error) {
	start := time.Now()
	defer func() { s.done("Get", start, len(out.GetValue()), err) }()

	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (out *wrapperspb.BoolValue, err error) {
	start := time.Now()
	defer func() { s.done("Has", start, 0, err) }()

	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(ctx, id)), nil
}

func (s *Server) done(method string, start time.Time, n int, err error) {
	if s == nil {
		return
	}
	s.Metrics.observe(method, start, n, err)
	if s.Logger == nil {
		return
	}
	code := status.Code(err)
	switch code {
	case codes.OK, codes.NotFound:
		s.Logger.Debug("cas request", zap.String("method", method), zap.Stringer("code", code), zap.Duration("took", time.Since(start)))
	default:
		s.Logger.Warn("cas request failed", zap.String("method", method), zap.Stringer("code", code), zap.Error(err))
	}
}

// codecFromContext reads the block codec of a Put from request metadata.
// Requests without the header store raw blocks.
func codecFromContext(ctx context.Context) (multicodec.Code, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(codecMetadataKey)
	if len(vals) == 0 || vals[0] == "" {
		return multicodec.Raw, nil
	}
	var code multicodec.Code
	if err := code.Set(vals[0]); err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "unknown codec %q", vals[0])
	}
	return code, nil
}
