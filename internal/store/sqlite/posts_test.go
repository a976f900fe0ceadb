package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parleyhq/parley-server/internal/store"
)

func mustPost(t *testing.T, s *SQLiteStore, author int64, title string, at time.Time) *store.Post {
	t.Helper()

	p := &store.Post{AuthorID: author, Title: title, Content: "body", CreatedAt: at}
	if err := s.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return p
}

func TestPostFeedOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p1 := mustPost(t, s, a.ID, "one", base)
	p2 := mustPost(t, s, a.ID, "two", base.Add(time.Minute))
	p3 := mustPost(t, s, a.ID, "three", base.Add(time.Minute))

	feed, err := s.ListPosts(ctx, 10, nil)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	wantIDs := []int64{p3.ID, p2.ID, p1.ID}
	if len(feed) != len(wantIDs) {
		t.Fatalf("expected %d posts, got %d", len(wantIDs), len(feed))
	}
	for i, p := range feed {
		if p.ID != wantIDs[i] {
			t.Fatalf("position %d: expected id %d, got %d", i, wantIDs[i], p.ID)
		}
		if p.AuthorUsername != "alice" {
			t.Fatalf("expected author username, got %q", p.AuthorUsername)
		}
	}

	page, err := s.ListPosts(ctx, 1, &p3.ID)
	if err != nil {
		t.Fatalf("ListPosts before: %v", err)
	}
	if len(page) != 1 || page[0].ID != p2.ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	changed, err := s.UpdatePost(ctx, p1.ID, a.ID+1, "x", "y", base)
	if err != nil || changed {
		t.Fatalf("update by non-author must not apply, changed=%v err=%v", changed, err)
	}
}

func TestToggleLike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")
	p := mustPost(t, s, a.ID, "post", time.Now())

	steps := []struct {
		user      int64
		wantLiked bool
		wantLikes int64
	}{
		{user: b.ID, wantLiked: true, wantLikes: 1},
		{user: a.ID, wantLiked: true, wantLikes: 2},
		{user: b.ID, wantLiked: false, wantLikes: 1},
		{user: b.ID, wantLiked: true, wantLikes: 2},
	}
	for i, step := range steps {
		liked, likes, err := s.ToggleLike(ctx, p.ID, step.user)
		if err != nil {
			t.Fatalf("step %d: ToggleLike: %v", i, err)
		}
		if liked != step.wantLiked || likes != step.wantLikes {
			t.Fatalf("step %d: expected liked=%v likes=%d, got liked=%v likes=%d", i, step.wantLiked, step.wantLikes, liked, likes)
		}
	}

	if _, _, err := s.ToggleLike(ctx, 999, b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing post, got %v", err)
	}
}

func TestCommentsCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")
	p := mustPost(t, s, a.ID, "post", time.Now())

	top := &store.Comment{PostID: p.ID, UserID: b.ID, Content: "top"}
	if err := s.AddComment(ctx, top); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	reply := &store.Comment{PostID: p.ID, ParentID: &top.ID, UserID: a.ID, Content: "reply"}
	if err := s.AddComment(ctx, reply); err != nil {
		t.Fatalf("AddComment reply: %v", err)
	}

	orphan := &store.Comment{PostID: 999, UserID: b.ID, Content: "lost"}
	if err := s.AddComment(ctx, orphan); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing post, got %v", err)
	}

	got, err := s.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.CommentCount != 2 || len(got.Comments) != 2 || got.Comments[1].ParentID == nil || got.Comments[0].Username != "bob" {
		t.Fatalf("unexpected comments: %+v", got.Comments)
	}

	if err := s.CreateNotification(ctx, &store.Notification{
		UserID: a.ID, FromUserID: b.ID, Type: store.NotificationComment, PostID: p.ID, CommentID: &top.ID,
	}); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	notes, err := s.ListNotifications(ctx, a.ID)
	if err != nil || len(notes) != 1 || notes[0].FromUsername != "bob" || notes[0].PostTitle != "post" {
		t.Fatalf("unexpected notifications %+v (%v)", notes, err)
	}

	if err := s.DeleteComment(ctx, top.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if _, err := s.GetComment(ctx, reply.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected reply to be removed with its parent, got %v", err)
	}
	notes, _ = s.ListNotifications(ctx, a.ID)
	if len(notes) != 0 {
		t.Fatalf("expected notification to be removed with its comment, got %d", len(notes))
	}

	if err := s.DeletePost(ctx, p.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if err := s.DeletePost(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
