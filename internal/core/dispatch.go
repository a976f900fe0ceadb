package core

import (
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/log"
	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/store"
)

// Emitter pushes an event onto a specific connection.
type Emitter interface {
	Emit(connID string, ev *Event) bool
}

// Dispatcher delivers events to users who are currently online.
// Delivery is best effort: offline users and full buffers are skipped, and
// nothing here ever fails the operation that produced the event.
type Dispatcher struct {
	presence *Presence
	emitter  Emitter
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher wires a dispatcher to a presence registry and an emitter.
func NewDispatcher(presence *Presence, emitter Emitter, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		presence: presence,
		emitter:  emitter,
		log:      logger,
		metrics:  m,
	}
}

// Deliver sends ev to userID's bound connection and reports whether it was queued.
func (d *Dispatcher) Deliver(userID int64, ev *Event) bool {
	if d == nil || ev == nil {
		return false
	}
	kind := ev.Kind.String()

	connID, ok := d.presence.Lookup(userID)
	if !ok {
		d.metrics.Delivery(kind, metrics.DeliveryOffline)
		return false
	}
	if !d.emitter.Emit(connID, ev) {
		d.metrics.Delivery(kind, metrics.DeliveryDropped)
		d.log.Warn().Int64("user_id", userID).Str("conn_id", connID).Str("event", kind).Msg("realtime delivery dropped")
		return false
	}
	d.metrics.Delivery(kind, metrics.DeliveryDelivered)
	return true
}

// NewMessage notifies the receiver of a persisted message.
func (d *Dispatcher) NewMessage(msg *store.Message) bool {
	return d.Deliver(msg.ReceiverID, &Event{Kind: EventNewMessage, Message: msg})
}

// MessageUpdated notifies recipientID of an edited message.
func (d *Dispatcher) MessageUpdated(recipientID int64, msg *store.Message) bool {
	return d.Deliver(recipientID, &Event{Kind: EventMessageUpdated, Message: msg})
}

// MessageDeleted notifies recipientID that messageID was removed.
func (d *Dispatcher) MessageDeleted(recipientID, messageID int64) bool {
	return d.Deliver(recipientID, &Event{Kind: EventMessageDeleted, MessageID: messageID})
}

// ConversationRead tells senderID that readerID read count of their messages.
func (d *Dispatcher) ConversationRead(senderID, readerID, count int64) bool {
	return d.Deliver(senderID, &Event{Kind: EventConversationRead, UserID: readerID, Count: count})
}

// Notification pushes a stored notification to the user it addresses.
func (d *Dispatcher) Notification(n *store.Notification) bool {
	return d.Deliver(n.UserID, &Event{Kind: EventNotification, Notification: n})
}
