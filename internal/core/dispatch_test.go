package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/store"
)

type recordingEmitter struct {
	mu     sync.Mutex
	accept bool
	sent   map[string][]*Event
}

func newRecordingEmitter(accept bool) *recordingEmitter {
	return &recordingEmitter{accept: accept, sent: make(map[string][]*Event)}
}

func (e *recordingEmitter) Emit(connID string, ev *Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.accept {
		return false
	}
	e.sent[connID] = append(e.sent[connID], ev)
	return true
}

func TestDispatcherOffline(t *testing.T) {
	p := NewPresence()
	em := newRecordingEmitter(true)
	d := NewDispatcher(p, em, nil, nil)

	assert.False(t, d.NewMessage(&store.Message{ID: 1, SenderID: 1, ReceiverID: 2}))
	assert.Empty(t, em.sent)
}

func TestDispatcherRoutesToBoundConnection(t *testing.T) {
	p := NewPresence()
	p.Bind(2, "c-bob")
	em := newRecordingEmitter(true)
	m := metrics.New()
	d := NewDispatcher(p, em, nil, m)

	msg := &store.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi"}
	require.True(t, d.NewMessage(msg))
	require.True(t, d.ConversationRead(2, 1, 3))

	events := em.sent["c-bob"]
	require.Len(t, events, 2)
	assert.Equal(t, EventNewMessage, events[0].Kind)
	assert.Same(t, msg, events[0].Message)
	assert.Equal(t, EventConversationRead, events[1].Kind)
	assert.Equal(t, int64(1), events[1].UserID)
	assert.Equal(t, int64(3), events[1].Count)
}

func TestDispatcherDroppedDelivery(t *testing.T) {
	p := NewPresence()
	p.Bind(2, "c-bob")
	d := NewDispatcher(p, newRecordingEmitter(false), nil, nil)

	assert.False(t, d.MessageDeleted(2, 10))
}

func TestDispatcherThroughHub(t *testing.T) {
	hub := newTestHub(t)
	bob := connect(t, hub, "c-bob")
	require.NoError(t, hub.Identify(bob, 2))
	d := NewDispatcher(hub.Presence(), hub, nil, nil)

	msg := &store.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hello"}
	require.True(t, d.MessageUpdated(2, msg))
	ev := mustEvent(t, bob.Events, EventMessageUpdated)
	assert.Equal(t, "hello", ev.Message.Content)

	hub.Disconnect(bob)
	assert.False(t, d.NewMessage(msg), "delivery after disconnect is skipped")
	assertNoEvent(t, bob.Events)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.False(t, d.Deliver(1, &Event{Kind: EventPong}))
}

func TestDispatcherNotification(t *testing.T) {
	p := NewPresence()
	p.Bind(7, "c-author")
	em := newRecordingEmitter(true)
	d := NewDispatcher(p, em, nil, nil)

	n := &store.Notification{ID: 3, UserID: 7, FromUserID: 8, Type: store.NotificationLike, PostID: 1}
	require.True(t, d.Notification(n))
	assert.False(t, d.Notification(&store.Notification{UserID: 9, FromUserID: 8, Type: store.NotificationComment}))

	events := em.sent["c-author"]
	require.Len(t, events, 1)
	assert.Equal(t, EventNotification, events[0].Kind)
	assert.Equal(t, "notification", events[0].Kind.String())
	assert.Same(t, n, events[0].Notification)
}
