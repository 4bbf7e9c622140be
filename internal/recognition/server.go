package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Handler serves one recognition session on the backend side. frames is
// closed when the client half-closes; send delivers one event to the client.
type Handler interface {
	Serve(ctx context.Context, opts Options, frames <-chan []byte, send func(Event) error) error
}

// RegisterService exposes h on s as the recognition stream service.
func RegisterService(s *grpc.Server, h Handler) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*Handler)(nil),
		Methods:     []grpc.MethodDesc{},
		Streams: []grpc.StreamDesc{{
			StreamName:    streamDesc.StreamName,
			Handler:       serveStream,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, h)
}

func serveStream(srv any, stream grpc.ServerStream) error {
	first := &anypb.Any{}
	if err := stream.RecvMsg(first); err != nil {
		return fmt.Errorf("receive recognition config: %w", err)
	}
	cfg := &structpb.Struct{}
	if err := first.UnmarshalTo(cfg); err != nil {
		return fmt.Errorf("decode recognition config: %w", err)
	}

	ctx := stream.Context()
	frames := make(chan []byte, 64)
	go func() {
		defer close(frames)
		for {
			msg := &anypb.Any{}
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			chunk := &wrapperspb.BytesValue{}
			if err := msg.UnmarshalTo(chunk); err != nil {
				continue
			}
			select {
			case frames <- chunk.GetValue():
			case <-ctx.Done():
				return
			}
		}
	}()

	send := func(ev Event) error {
		msg, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	}
	err := srv.(Handler).Serve(ctx, DecodeOptions(cfg), frames, send)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
