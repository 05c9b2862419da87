// Package broadcast tracks open websocket connections and fans domain events
// out to all of them. Delivery is best-effort per connection: a client that
// cannot keep up is dropped, never waited on.
package broadcast

import (
	"encoding/json"

	"messager/internal/storage"
)

// Event kinds carried in the payload's "type" field.
const (
	KindNewMessage     = "new_message"
	KindMessageDeleted = "message_deleted"
	KindChannelDeleted = "channel_deleted"
)

// Event is a pre-marshaled fan-out payload. Events are built once at the
// mutation site so every connection receives identical bytes.
type Event struct {
	Kind    string
	Payload []byte
}

type newMessageEvent struct {
	Type    string          `json:"type"`
	Message storage.Message `json:"message"`
}

type messageDeletedEvent struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channel_id"`
}

type channelDeletedEvent struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// NewMessage builds the event announcing a freshly stored message
func NewMessage(m storage.Message) Event {
	return marshalEvent(KindNewMessage, newMessageEvent{Type: KindNewMessage, Message: m})
}

// MessageDeleted builds the event announcing a removed message
func MessageDeleted(id, channelID int64) Event {
	return marshalEvent(KindMessageDeleted, messageDeletedEvent{Type: KindMessageDeleted, ID: id, ChannelID: channelID})
}

// ChannelDeleted builds the event announcing a removed channel
func ChannelDeleted(id int64) Event {
	return marshalEvent(KindChannelDeleted, channelDeletedEvent{Type: KindChannelDeleted, ID: id})
}

func marshalEvent(kind string, v interface{}) Event {
	// the event structs marshal unconditionally; a failure here would be a
	// programming error, not input-dependent
	payload, err := json.Marshal(v)
	if err != nil {
		panic("broadcast: marshaling event: " + err.Error())
	}
	return Event{Kind: kind, Payload: payload}
}
