package chat

import "encoding/json"

// Event types on the websocket. Server -> client unless noted.
const (
	EventPresenceUpdate = "presence-update"
	EventNewMessage     = "new-message"
	EventMessageRead    = "message-read"
	EventMarkRead       = "mark-read" // client -> server
)

// Frame is the JSON envelope exchanged on the websocket itself.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type PresencePayload struct {
	UserIDs []int `json:"user_ids"`
}

type MarkReadPayload struct {
	MessageID  int `json:"message_id"`
	ReceiverID int `json:"receiver_id"`
}

type MessageReadPayload struct {
	MessageID int `json:"message_id"`
}

// Delivery scopes for envelopes published on the bus.
const (
	scopeBroadcast = "broadcast"
	scopeDirect    = "direct"
)

// Envelope is what travels over the event bus between instances. Broadcast
// envelopes fan out to every local connection; direct envelopes are dropped
// by every instance except the one holding ConnID.
type Envelope struct {
	Scope  string `json:"scope"`
	ConnID string `json:"conn_id,omitempty"`
	Frame  Frame  `json:"frame"`
}

func marshalPayload(data interface{}) (json.RawMessage, error) {
	return json.Marshal(data)
}
