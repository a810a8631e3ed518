package grpcapi

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "opencell.v1.SessionEvents"
	SubscribeMethod = "/" + ServiceName + "/Subscribe"
	EventSubscribed = "subscribed"
	fieldSessionID  = "session_id"
	timestampLayout = time.RFC3339Nano
)

// SessionLookup resolves session ids. Only existence is checked.
type SessionLookup interface {
	Exists(id uuid.UUID) bool
}

// SessionEventsServer streams session events. Request and events are
// google.protobuf.Struct values so no generated code is needed.
type SessionEventsServer interface {
	Subscribe(req *structpb.Struct, stream SessionEvents_SubscribeServer) error
}

type SessionEvents_SubscribeServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type sessionEventsSubscribeServer struct {
	grpc.ServerStream
}

func (x *sessionEventsSubscribeServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SessionEventsServer).Subscribe(m, &sessionEventsSubscribeServer{stream})
}

var SessionEventsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionEventsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "opencell/v1/events.proto",
}

type EventService struct {
	streamer *events.Streamer
	sessions SessionLookup
	logger   *zap.Logger
}

func NewEventService(streamer *events.Streamer, sessions SessionLookup, logger *zap.Logger) *EventService {
	return &EventService{
		streamer: streamer,
		sessions: sessions,
		logger:   logger,
	}
}

// Subscribe streams events for the session named in the request's
// "session_id" field, or for every session when it is absent.
func (s *EventService) Subscribe(req *structpb.Struct, stream SessionEvents_SubscribeServer) error {
	sessionID := uuid.Nil
	if v, ok := req.GetFields()[fieldSessionID]; ok && v.GetStringValue() != "" {
		id, err := uuid.Parse(v.GetStringValue())
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid session_id: %v", err)
		}
		if s.sessions != nil && !s.sessions.Exists(id) {
			return status.Errorf(codes.NotFound, "session not found: %s", id)
		}
		sessionID = id
	}

	eventCh := s.streamer.Subscribe(sessionID)
	defer s.streamer.Unsubscribe(sessionID, eventCh)

	s.logger.Info("gRPC event subscriber attached", zap.String("session_id", sessionID.String()))

	hello, err := structpb.NewStruct(map[string]interface{}{
		"type":       EventSubscribed,
		"session_id": sessionID.String(),
		"timestamp":  time.Now().Format(timestampLayout),
	})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to build greeting: %v", err)
	}
	if err := stream.Send(hello); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return nil
			}

			msg, err := EventToStruct(event)
			if err != nil {
				s.logger.Warn("Dropping event that cannot be encoded",
					zap.String("event_type", event.Type),
					zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func EventToStruct(event *events.Event) (*structpb.Struct, error) {
	payload := make(map[string]interface{}, len(event.Payload))
	for k, v := range event.Payload {
		payload[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":         event.ID.String(),
		"session_id": event.SessionID.String(),
		"type":       event.Type,
		"timestamp":  event.Timestamp.Format(timestampLayout),
		"payload":    payload,
	})
}

// SessionEventsClient is the client side of SessionEventsServiceDesc.
type SessionEventsClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionEventsClient(cc grpc.ClientConnInterface) *SessionEventsClient {
	return &SessionEventsClient{cc: cc}
}

type SessionEvents_SubscribeClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type sessionEventsSubscribeClient struct {
	grpc.ClientStream
}

func (x *sessionEventsSubscribeClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *SessionEventsClient) Subscribe(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (SessionEvents_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &SessionEventsServiceDesc.Streams[0], SubscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &sessionEventsSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
