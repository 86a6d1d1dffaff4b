package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/ivankudzin/amour/internal/domain/model"
)

// Client events.
const (
	EventAuthenticate   = "authenticate"
	EventSetActiveMatch = "setActiveMatch"
	EventSendMessage    = "sendMessage"
	EventMarkAsRead     = "markAsRead"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
)

// Server events. typing and stopTyping are relayed under the same names.
const (
	EventAuthenticated      = "authenticated"
	EventActiveMatchSet     = "activeMatchSet"
	EventReadMarked         = "readMarked"
	EventNewMessage         = "newMessage"
	EventMessageSent        = "messageSent"
	EventMessageRead        = "messageRead"
	EventNotificationUpdate = "notificationUpdate"
	EventMatchRemoved       = "matchRemoved"
	EventMessageError       = "messageError"
)

// Envelope is the only frame shape on the socket in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(eventType, requestID string, payload any) (Envelope, error) {
	env := Envelope{Type: eventType, RequestID: requestID}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the payload into v. A missing payload decodes as the zero value.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type matchPayload struct {
	MatchID int64 `json:"match_id"`
}

type sendMessagePayload struct {
	MatchID  int64  `json:"match_id"`
	Content  string `json:"content"`
	MediaRef string `json:"media_ref,omitempty"`
}

type AuthenticatedPayload struct {
	UserID int64 `json:"user_id"`
}

type ActiveMatchSetPayload struct {
	MatchID   int64 `json:"match_id"`
	ReadCount int   `json:"read_count"`
}

type MessagePayload struct {
	Message model.Message `json:"message"`
}

type MessageReadPayload struct {
	MatchID    int64   `json:"match_id"`
	ReaderID   int64   `json:"reader_id"`
	MessageIDs []int64 `json:"message_ids"`
	Count      int     `json:"count"`
}

type TypingPayload struct {
	MatchID int64 `json:"match_id"`
	UserID  int64 `json:"user_id"`
}

type MatchRemovedPayload struct {
	MatchID int64 `json:"match_id"`
}

type ErrorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int64  `json:"retry_after_sec,omitempty"`
}
