package live

import "time"

type MessageType string

const (
	// MessageTypeInvalidated tells a client that the listed keys changed and should
	// be fetched again.
	MessageTypeInvalidated MessageType = "INVALIDATED"

	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageTypePing        MessageType = "PING"
	MessageTypePong        MessageType = "PONG"
	MessageTypeError       MessageType = "ERROR"
	MessageTypeSuccess     MessageType = "SUCCESS"
)

type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SubscriptionData is the payload of SUBSCRIBE and UNSUBSCRIBE. Rooms are cache keys
// such as "tasks:all", "task:3" or "profile:0xa1".
type SubscriptionData struct {
	Room string `json:"room"`
}

type InvalidatedData struct {
	Keys []string `json:"keys"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessData struct {
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

func NewMessage(msgType MessageType, data any) *Message {
	return &Message{Type: msgType, Data: data, Timestamp: time.Now()}
}

func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, &ErrorData{Code: code, Message: message})
}
