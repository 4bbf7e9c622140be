package enhance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbright/colloquy/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName   = "colloquy.enhance.v1.Enhancer"
	enhanceMethod = "/" + serviceName + "/Enhance"
)

// Remote calls an Enhancer exposed over gRPC by RegisterService.
type Remote struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// DialRemote connects to a remote enhancer. Each call is bounded by callTimeout.
func DialRemote(ctx context.Context, endpoint string, dialTimeout time.Duration, callTimeout time.Duration) (*Remote, error) {
	conn, err := rpc.Dial(ctx, endpoint, dialTimeout)
	if err != nil {
		return nil, err
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Remote{conn: conn, timeout: callTimeout}, nil
}

// Enhance sends one utterance and decodes the reply.
func (r *Remote) Enhance(ctx context.Context, text string, confidence float64, profile Profile) (Result, error) {
	req, err := structpb.NewStruct(map[string]any{
		"text":       text,
		"confidence": confidence,
		"profile":    string(profile),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode enhance request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(callCtx, enhanceMethod, req, resp); err != nil {
		return Result{}, fmt.Errorf("remote enhance: %w", err)
	}
	return decodeResult(resp)
}

// Close releases the connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

func decodeResult(msg *structpb.Struct) (Result, error) {
	fields := msg.GetFields()
	textValue, ok := fields["text"]
	if !ok {
		return Result{}, errors.New("enhance response missing text")
	}
	res := Result{Text: textValue.GetStringValue()}
	if c, ok := fields["confidence"]; ok {
		res.Confidence = c.GetNumberValue()
	}
	return res, nil
}

type enhanceServer interface {
	Enhance(ctx context.Context, text string, confidence float64, profile Profile) (Result, error)
}

// RegisterService exposes e on s under the colloquy enhancer service name.
func RegisterService(s *grpc.Server, e Enhancer) {
	s.RegisterService(&serviceDesc, e)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*enhanceServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Enhance",
		Handler:    handleEnhance,
	}},
	Streams: []grpc.StreamDesc{},
}

func handleEnhance(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		fields := req.(*structpb.Struct).GetFields()
		res, err := srv.(enhanceServer).Enhance(
			ctx,
			fields["text"].GetStringValue(),
			fields["confidence"].GetNumberValue(),
			Profile(fields["profile"].GetStringValue()),
		)
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(map[string]any{"text": res.Text, "confidence": res.Confidence})
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: enhanceMethod}
	return interceptor(ctx, in, info, call)
}
