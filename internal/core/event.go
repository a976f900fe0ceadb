package core

import "github.com/parleyhq/parley-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventIdentified confirms a connection is now bound to a user.
	EventIdentified EventKind = iota
	// EventPong answers a client ping.
	EventPong
	// EventNewMessage carries a freshly persisted message to its receiver.
	EventNewMessage
	// EventMessageUpdated carries an edited message to the other party.
	EventMessageUpdated
	// EventMessageDeleted tells the other party a message is gone.
	EventMessageDeleted
	// EventConversationRead tells a sender their messages were read.
	EventConversationRead
	// EventNotification carries a new like, comment or reply notification.
	EventNotification
	// EventError notifies clients about a domain error.
	EventError
)

var eventNames = map[EventKind]string{
	EventIdentified:       "identified",
	EventPong:             "pong",
	EventNewMessage:       "new_message",
	EventMessageUpdated:   "message_updated",
	EventMessageDeleted:   "message_deleted",
	EventConversationRead: "conversation_read",
	EventNotification:     "notification",
	EventError:            "error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between goroutines once emitted and must not be mutated.
type Event struct {
	Kind EventKind
	// UserID is the bound user for EventIdentified and the reader for EventConversationRead.
	UserID       int64
	Message      *store.Message
	MessageID    int64
	Count        int64
	Notification *store.Notification
	Error        *CoreError
}
