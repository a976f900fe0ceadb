package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeIdentify = "identify"
	InboundTypePing     = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// IdentifyData binds the connection to the user named by the token.
type IdentifyData struct {
	Token string `json:"token"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Attachment is the wire form of a stored file.
type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// Message is the wire form of a direct message, shared by HTTP and websocket.
type Message struct {
	ID             int64        `json:"id"`
	SenderID       int64        `json:"sender_id"`
	SenderUsername string       `json:"sender_username,omitempty"`
	ReceiverID     int64        `json:"receiver_id"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
	IsRead         bool         `json:"is_read"`
	Edited         bool         `json:"edited"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// EventIdentified confirms which user the connection is bound to.
type EventIdentified struct {
	UserID int64 `json:"user_id"`
}

// EventMessageDeleted tells the other party a message was removed.
type EventMessageDeleted struct {
	ID int64 `json:"id"`
}

// EventConversationRead tells a sender their messages were read.
type EventConversationRead struct {
	ReaderID int64 `json:"reader_id"`
	Count    int64 `json:"count"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
