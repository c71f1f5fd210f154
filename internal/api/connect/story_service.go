// Package connect provides the Connect RPC story service.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/storybox/internal/app/session"
)

const (
	// StoryServiceName is the fully-qualified name of the story service.
	StoryServiceName = "storybox.v1.StoryService"

	SendIntentProcedure = "/" + StoryServiceName + "/SendIntent"
	GetStatusProcedure  = "/" + StoryServiceName + "/GetStatus"
	SubscribeProcedure  = "/" + StoryServiceName + "/Subscribe"
)

// Message types on the Subscribe stream.
const (
	MessageStatus = session.FeedStatus
	MessageEvent  = session.FeedEvent
)

// eventBuffer bounds the host events queued for one slow subscriber.
const eventBuffer = 32

// Host is the session surface the service needs.
type Host interface {
	Apply(req session.IntentRequest) error
	Status() session.Status
	SubscribeStatus(listener func(session.Status)) string
	SubscribeEvents(listener func(session.HostEvent)) string
	Unsubscribe(subscriptionID string)
	Done() <-chan struct{}
}

// StoryService implements the story RPCs over structpb messages.
type StoryService struct {
	host Host
}

// NewStoryService creates a new StoryService.
func NewStoryService(host Host) *StoryService {
	return &StoryService{host: host}
}

// NewStoryServiceHandler builds an HTTP handler serving the story service.
// It returns the path to mount the handler on.
func NewStoryServiceHandler(svc *StoryService, opts ...connect.HandlerOption) (string, http.Handler) {
	sendIntent := connect.NewUnaryHandler(SendIntentProcedure, svc.SendIntent, opts...)
	getStatus := connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...)
	subscribe := connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...)

	return "/" + StoryServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SendIntentProcedure:
			sendIntent.ServeHTTP(w, r)
		case GetStatusProcedure:
			getStatus.ServeHTTP(w, r)
		case SubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// SendIntent decodes and applies one intent.
func (s *StoryService) SendIntent(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	intent, err := session.DecodeIntent(req.Msg.AsMap())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.host.Apply(intent); err != nil {
		return nil, toConnectError(err)
	}

	return s.statusResponse()
}

// GetStatus returns the current session status.
func (s *StoryService) GetStatus(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.statusResponse()
}

// Subscribe streams the initial status followed by status changes and host events.
func (s *StoryService) Subscribe(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	// Subscribe before reading the initial status
	feed := session.NewFeed(s.host, eventBuffer)
	defer feed.Close()

	if err := sendMessage(stream, MessageStatus, s.host.Status().Map()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.host.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := feed.Next(ctx)
		if err != nil {
			// Client went away or the session ended
			return nil
		}
		if err := sendMessage(stream, msg.Type, msg.Payload()); err != nil {
			return err
		}
	}
}

func (s *StoryService) statusResponse() (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(s.host.Status().Map())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode status"))
	}
	return connect.NewResponse(msg), nil
}

func sendMessage(stream *connect.ServerStream[structpb.Struct], typ string, payload map[string]any) error {
	msg, err := structpb.NewStruct(map[string]any{
		"type":    typ,
		"payload": payload,
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, errors.Wrapf(err, "failed to encode %s message", typ))
	}
	return stream.Send(msg)
}

// toConnectError maps session errors to Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrPlayerClosed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, session.ErrUnknownIntent):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, session.ErrSessionNotRunning):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
