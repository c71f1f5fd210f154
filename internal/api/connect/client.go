package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/storybox/internal/app/session"
)

// StoryServiceClient is a client for the story service.
type StoryServiceClient struct {
	sendIntent *connect.Client[structpb.Struct, structpb.Struct]
	getStatus  *connect.Client[structpb.Struct, structpb.Struct]
	subscribe  *connect.Client[structpb.Struct, structpb.Struct]
}

// NewStoryServiceClient creates a client for the story service at baseURL.
func NewStoryServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *StoryServiceClient {
	return &StoryServiceClient{
		sendIntent: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SendIntentProcedure, opts...),
		getStatus:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		subscribe:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// SendIntent sends one intent and returns the resulting status.
func (c *StoryServiceClient) SendIntent(ctx context.Context, req session.IntentRequest) (map[string]any, error) {
	msg, err := structpb.NewStruct(req.Map())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode intent")
	}
	resp, err := c.sendIntent.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// GetStatus returns the current status.
func (c *StoryServiceClient) GetStatus(ctx context.Context) (map[string]any, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Subscribe streams messages to fn until the stream ends or fn returns an error.
func (c *StoryServiceClient) Subscribe(ctx context.Context, fn func(msgType string, payload map[string]any) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		m := stream.Msg().AsMap()
		typ, _ := m["type"].(string)
		payload, _ := m["payload"].(map[string]any)
		if err := fn(typ, payload); err != nil {
			return err
		}
	}
	return stream.Err()
}
