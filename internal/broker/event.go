package broker

import "encoding/json"

// Client -> broker events.
const (
	EventUserOnline   = "user:online"
	EventJoin         = "conversation:join"
	EventLeave        = "conversation:leave"
	EventMessageSend  = "message:send"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventMessagesRead = "messages:read"
)

// Broker -> client events. Typing and read events are relayed under their
// inbound names.
const (
	EventUserStatus = "user:status"
	EventMessageNew = "message:new"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the wire frame in both directions: one JSON object per
// websocket text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusPayload announces a presence transition to all clients.
type StatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// SendPayload carries an already-persisted message into the broker. The
// message body is opaque here; it is fanned out verbatim so receivers can
// dedupe on whatever id the store assigned.
type SendPayload struct {
	ConversationID string          `json:"conversationId"`
	Message        json.RawMessage `json:"message"`
}

// TypingPayload scopes a typing signal to a conversation. The user object
// is relayed as-is.
type TypingPayload struct {
	ConversationID string          `json:"conversationId"`
	User           json.RawMessage `json:"user"`
}

// ReadPayload signals that a user caught up in a conversation. The
// authoritative read flag is written by the API layer, not here.
type ReadPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ReadSignal is the room-scoped relay of a ReadPayload.
type ReadSignal struct {
	UserID string `json:"userId"`
}

func encodeEnvelope(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(&Envelope{Event: event, Data: raw})
}
