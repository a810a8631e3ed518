package websocket

import (
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/events"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeSessionEvent MessageType = "session_event"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeSystemStatus MessageType = "system_status"
	MessageTypeError        MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
}

// ClientCommand is what a client may send. Only "subscribe" is understood;
// an empty session_id subscribes to every session.
type ClientCommand struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSessionEventMessage(event *events.Event) Message {
	return Message{
		Type:      MessageTypeSessionEvent,
		Timestamp: event.Timestamp,
		SessionID: event.SessionID.String(),
		Data:      event,
	}
}
