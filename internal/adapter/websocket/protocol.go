package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/fazzk/internal/domain"
)

// Message types on the wire. Every frame is a JSON object with a "type" tag.
const (
	TypePing             = "ping"
	TypeSubscribe        = "subscribe"
	TypeTestFollower     = "test_follower"
	TypePong             = "pong"
	TypeNewFollower      = "new_follower"
	TypeTestNotification = "test_notification"
	TypeSettingsUpdated  = "settings_updated"
	TypeError            = "error"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
)

// ClientMessage is one of PingMessage, SubscribeMessage, TestFollowerMessage.
type ClientMessage interface {
	clientMessage()
}

type PingMessage struct{}

type SubscribeMessage struct {
	Topics []string
}

type TestFollowerMessage struct{}

func (PingMessage) clientMessage()         {}
func (SubscribeMessage) clientMessage()    {}
func (TestFollowerMessage) clientMessage() {}

type inboundFrame struct {
	Type   string    `json:"type"`
	Topics *[]string `json:"topics"`
}

// DecodeClientMessage parses an inbound text frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch frame.Type {
	case TypePing:
		return PingMessage{}, nil
	case TypeSubscribe:
		if frame.Topics == nil {
			return nil, fmt.Errorf("%w: subscribe requires topics", ErrMalformedMessage)
		}
		return SubscribeMessage{Topics: *frame.Topics}, nil
	case TypeTestFollower:
		return TestFollowerMessage{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, frame.Type)
	}
}

// ServerMessage is an outbound frame. Only the field matching Type is set.
type ServerMessage struct {
	Type     string           `json:"type"`
	Follower *domain.Follower `json:"follower,omitempty"`
	Settings *domain.Settings `json:"settings,omitempty"`
	Message  string           `json:"message,omitempty"`
}

func PongMessage() ServerMessage {
	return ServerMessage{Type: TypePong}
}

func ErrorMessage(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: msg}
}

// EventMessage converts a bus event into its wire form.
func EventMessage(e domain.Event) (ServerMessage, error) {
	switch e.Kind {
	case domain.EventNewFollower:
		return ServerMessage{Type: TypeNewFollower, Follower: e.Follower}, nil
	case domain.EventTestNotification:
		return ServerMessage{Type: TypeTestNotification, Follower: e.Follower}, nil
	case domain.EventSettingsUpdated:
		settings := e.Settings
		if settings == nil {
			settings = domain.Settings{}
		}
		return ServerMessage{Type: TypeSettingsUpdated, Settings: &settings}, nil
	default:
		return ServerMessage{}, fmt.Errorf("no wire form for event kind %q", e.Kind)
	}
}

func (m ServerMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return data, nil
}
