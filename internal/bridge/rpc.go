package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"realm/internal/harness"
)

const (
	// HarnessServiceName is the fully-qualified name of the harness service.
	HarnessServiceName = "realm.harness.v1.HarnessService"

	DispatchProcedure = "/" + HarnessServiceName + "/Dispatch"
	EventsProcedure   = "/" + HarnessServiceName + "/Events"
)

type DispatchResponse struct {
	Accepted bool `json:"accepted"`
}

type EventsRequest struct{}

// jsonCodec lets the harness service run without generated messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// NewHarnessServiceHandler mounts the connect harness service: Dispatch
// executes a command, Events streams a ready frame and then every broadcast
// frame until the caller hangs up.
func NewHarnessServiceHandler(b *Bridge) (string, http.Handler) {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	dispatch := connect.NewUnaryHandler(DispatchProcedure,
		func(_ context.Context, req *connect.Request[harness.Command]) (*connect.Response[DispatchResponse], error) {
			if err := b.Dispatch(*req.Msg); err != nil {
				code := connect.CodeInternal
				switch {
				case errors.Is(err, ErrUnknownAction):
					code = connect.CodeInvalidArgument
				case errors.Is(err, ErrNotBound):
					code = connect.CodeUnavailable
				}
				return nil, connect.NewError(code, err)
			}
			return connect.NewResponse(&DispatchResponse{Accepted: true}), nil
		},
		opts...,
	)

	events := connect.NewServerStreamHandler(EventsProcedure,
		func(ctx context.Context, _ *connect.Request[EventsRequest], stream *connect.ServerStream[Frame]) error {
			frames, unsubscribe := b.Subscribe()
			defer unsubscribe()
			// The client sees the stream only once headers arrive with the
			// first message.
			if err := stream.Send(&Frame{Type: FrameReady}); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case f := <-frames:
					if err := stream.Send(&f); err != nil {
						return err
					}
				}
			}
		},
		opts...,
	)

	mux := http.NewServeMux()
	mux.Handle(DispatchProcedure, dispatch)
	mux.Handle(EventsProcedure, events)
	return "/" + HarnessServiceName + "/", mux
}

// HarnessClient calls the harness service over connect.
type HarnessClient struct {
	dispatch *connect.Client[harness.Command, DispatchResponse]
	events   *connect.Client[EventsRequest, Frame]
}

func NewHarnessClient(httpClient connect.HTTPClient, baseURL string) *HarnessClient {
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	return &HarnessClient{
		dispatch: connect.NewClient[harness.Command, DispatchResponse](httpClient, baseURL+DispatchProcedure, opts...),
		events:   connect.NewClient[EventsRequest, Frame](httpClient, baseURL+EventsProcedure, opts...),
	}
}

func (c *HarnessClient) Dispatch(ctx context.Context, cmd harness.Command) error {
	_, err := c.dispatch.CallUnary(ctx, connect.NewRequest(&cmd))
	return err
}

// Events opens the frame stream. The caller must Close it.
func (c *HarnessClient) Events(ctx context.Context) (*connect.ServerStreamForClient[Frame], error) {
	return c.events.CallServerStream(ctx, connect.NewRequest(&EventsRequest{}))
}
