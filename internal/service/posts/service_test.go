package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/store"
	"github.com/parleyhq/parley-server/internal/store/sqlite"
)

type fixture struct {
	svc   *Service
	store *sqlite.SQLiteStore
	hub   *core.Hub
	alice *store.User
	bob   *store.User
	carol *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	users := make([]*store.User, 0, 3)
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := st.CreateUser(ctx, name, name+"@example.com", "hash")
		require.NoError(t, err)
		users = append(users, u)
	}

	hub := core.NewHub(nil, nil)
	dispatcher := core.NewDispatcher(hub.Presence(), hub, nil, nil)

	svc := New(st, dispatcher, nil, nil)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	return &fixture{svc: svc, store: st, hub: hub, alice: users[0], bob: users[1], carol: users[2]}
}

func (f *fixture) online(t *testing.T, user *store.User) *core.Client {
	t.Helper()
	c := core.NewClient(user.Username+"-conn", 8)
	f.hub.Connect(c)
	require.NoError(t, f.hub.Identify(c, user.ID))
	return c
}

func (f *fixture) post(t *testing.T, author *store.User, title string) *store.Post {
	t.Helper()
	p, err := f.svc.Create(context.Background(), author.ID, title, "body of "+title)
	require.NoError(t, err)
	return p
}

func noEvent(t *testing.T, c *core.Client) {
	t.Helper()
	select {
	case ev := <-c.Events:
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestCreateAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice.ID, "  ", "content")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Create(ctx, f.alice.ID, "title", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Create(ctx, f.alice.ID, string(make([]rune, MaxTitleLength+1)), "content")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Create(ctx, 404, "title", "content")
	assert.ErrorIs(t, err, ErrNotFound)

	first := f.post(t, f.alice, "first")
	assert.NotZero(t, first.ID)
	assert.Equal(t, "alice", first.AuthorUsername)
	second := f.post(t, f.bob, "second")

	feed, err := f.svc.List(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, second.ID, feed[0].ID)
	assert.Equal(t, "bob", feed[0].AuthorUsername)
	assert.Equal(t, first.ID, feed[1].ID)

	older, err := f.svc.List(ctx, 10, &second.ID)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, first.ID, older[0].ID)

	got, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, "body of first", got.Content)
	assert.Empty(t, got.Comments)

	_, err = f.svc.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateAndDeleteRequireAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "draft")

	_, err := f.svc.Update(ctx, f.bob.ID, p.ID, "hijack", "nope")
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := f.svc.Update(ctx, f.alice.ID, p.ID, "final", "done")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob.ID, p.ID), ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, p.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.alice.ID, p.ID), ErrNotFound)
}

func TestToggleLikeNotifiesAuthorOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "likeable")
	aliceConn := f.online(t, f.alice)

	res, err := f.svc.ToggleLike(ctx, f.bob.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, Likes: 1}, res)

	select {
	case ev := <-aliceConn.Events:
		assert.Equal(t, core.EventNotification, ev.Kind)
		require.NotNil(t, ev.Notification)
		assert.Equal(t, store.NotificationLike, ev.Notification.Type)
		assert.Equal(t, "bob", ev.Notification.FromUsername)
		assert.Equal(t, "likeable", ev.Notification.PostTitle)
	case <-time.After(time.Second):
		t.Fatal("expected a notification event")
	}

	res, err = f.svc.ToggleLike(ctx, f.bob.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: false, Likes: 0}, res)
	noEvent(t, aliceConn)

	// Liking your own post counts but is not notified.
	res, err = f.svc.ToggleLike(ctx, f.alice.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, Likes: 1}, res)
	noEvent(t, aliceConn)

	notes, err := f.svc.Notifications(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, f.bob.ID, notes[0].FromUserID)

	_, err = f.svc.ToggleLike(ctx, f.bob.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommentsAndReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "thread")

	_, err := f.svc.AddComment(ctx, f.bob.ID, p.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	comment, err := f.svc.AddComment(ctx, f.bob.ID, p.ID, "nice post")
	require.NoError(t, err)
	assert.Equal(t, "bob", comment.Username)
	assert.False(t, comment.IsReply())

	reply, err := f.svc.Reply(ctx, f.carol.ID, p.ID, comment.ID, "agreed")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, comment.ID, *reply.ParentID)

	_, err = f.svc.Reply(ctx, f.bob.ID, p.ID, reply.ID, "nested")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	other := f.post(t, f.bob, "elsewhere")
	_, err = f.svc.Reply(ctx, f.bob.ID, other.ID, comment.ID, "wrong post")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, comment.ID, got.Comments[0].ID)
	assert.Equal(t, reply.ID, got.Comments[1].ID)

	aliceNotes, err := f.svc.Notifications(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceNotes, 1)
	assert.Equal(t, store.NotificationComment, aliceNotes[0].Type)
	require.NotNil(t, aliceNotes[0].CommentID)
	assert.Equal(t, comment.ID, *aliceNotes[0].CommentID)

	bobNotes, err := f.svc.Notifications(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, bobNotes, 1)
	assert.Equal(t, store.NotificationReply, bobNotes[0].Type)
	assert.Equal(t, "carol", bobNotes[0].FromUsername)
	assert.Equal(t, "thread", bobNotes[0].PostTitle)
}

func TestSelfInteractionsAreNotNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "mine")

	comment, err := f.svc.AddComment(ctx, f.alice.ID, p.ID, "first!")
	require.NoError(t, err)
	_, err = f.svc.Reply(ctx, f.alice.ID, p.ID, comment.ID, "talking to myself")
	require.NoError(t, err)

	notes, err := f.svc.Notifications(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestUpdateAndDeleteReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "topic")
	comment, err := f.svc.AddComment(ctx, f.bob.ID, p.ID, "question")
	require.NoError(t, err)
	reply, err := f.svc.Reply(ctx, f.carol.ID, p.ID, comment.ID, "answer")
	require.NoError(t, err)

	_, err = f.svc.UpdateReply(ctx, f.bob.ID, p.ID, comment.ID, reply.ID, "edited by bob")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateReply(ctx, f.carol.ID, p.ID, comment.ID, comment.ID, "not a reply")
	assert.ErrorIs(t, err, ErrNotFound)

	edited, err := f.svc.UpdateReply(ctx, f.carol.ID, p.ID, comment.ID, reply.ID, "better answer")
	require.NoError(t, err)
	assert.Equal(t, "better answer", edited.Content)
	require.NotNil(t, edited.EditedAt)

	stored, err := f.store.GetComment(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "better answer", stored.Content)

	assert.ErrorIs(t, f.svc.DeleteReply(ctx, f.bob.ID, p.ID, comment.ID, reply.ID), ErrForbidden)
	// The post author may moderate replies.
	require.NoError(t, f.svc.DeleteReply(ctx, f.alice.ID, p.ID, comment.ID, reply.ID))
	assert.ErrorIs(t, f.svc.DeleteReply(ctx, f.alice.ID, p.ID, comment.ID, reply.ID), ErrNotFound)
}

func TestDeletePostCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.alice, "short-lived")
	comment, err := f.svc.AddComment(ctx, f.bob.ID, p.ID, "hi")
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.bob.ID, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, p.ID))

	_, err = f.store.GetComment(ctx, comment.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	notes, err := f.svc.Notifications(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
