package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/parleyhq/parley-server/internal/proto"
)

func TestPostLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	aliceID, alice := env.register(t, "alice")
	_, bob := env.register(t, "bob")
	_, carol := env.register(t, "carol")

	rec := env.do(t, http.MethodPost, "/api/v1/posts", "", PostRequest{Title: "t", Content: "c"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 creating anonymously, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/posts", alice, PostRequest{Title: "hello", Content: ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without content, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/posts", alice, PostRequest{Title: "hello", Content: "world"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var post proto.Post
	decode(t, rec, &post)
	if post.AuthorID != aliceID || post.AuthorUsername != "alice" || post.Title != "hello" {
		t.Fatalf("unexpected post: %+v", post)
	}
	postPath := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	// Reading is public.
	rec = env.do(t, http.MethodGet, "/api/v1/posts", "", nil)
	var feed []proto.Post
	decode(t, rec, &feed)
	if len(feed) != 1 || feed[0].ID != post.ID {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	rec = env.do(t, http.MethodPatch, postPath+"/like", bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on like, got %d", rec.Code)
	}
	var like proto.Like
	decode(t, rec, &like)
	if !like.Liked || like.Likes != 1 {
		t.Fatalf("unexpected like state: %+v", like)
	}

	rec = env.do(t, http.MethodPost, postPath+"/comment", bob, CommentRequest{Content: "great"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on comment, got %d: %s", rec.Code, rec.Body.String())
	}
	var comment proto.Comment
	decode(t, rec, &comment)

	replyBase := fmt.Sprintf("%s/comment/%d/reply", postPath, comment.ID)
	rec = env.do(t, http.MethodPost, replyBase, carol, CommentRequest{Content: "agreed"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on reply, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply proto.Comment
	decode(t, rec, &reply)
	if reply.ParentID == nil || *reply.ParentID != comment.ID {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	replyURL := fmt.Sprintf("%s/%d", replyBase, reply.ID)

	rec = env.do(t, http.MethodPatch, replyURL, bob, CommentRequest{Content: "hijacked"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 editing someone else's reply, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPatch, replyURL, carol, CommentRequest{Content: "strongly agreed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 editing reply, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, postPath, "", nil)
	var full proto.Post
	decode(t, rec, &full)
	if full.Likes != 1 || full.CommentCount != 2 || len(full.Comments) != 2 || full.Comments[1].Content != "strongly agreed" {
		t.Fatalf("unexpected post detail: %+v", full)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications", alice, nil)
	var notes []proto.Notification
	decode(t, rec, &notes)
	if len(notes) != 2 || notes[0].Type != "comment" || notes[1].Type != "like" || notes[0].FromUsername != "bob" {
		t.Fatalf("unexpected notifications: %+v", notes)
	}

	rec = env.do(t, http.MethodDelete, replyURL, carol, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting reply, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, postPath, bob, PostRequest{Title: "x", Content: "y"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 editing someone else's post, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, postPath, alice, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting post, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, postPath, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/posts/abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestNotificationPushedOverWebSocket(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	_, alice := env.register(t, "alice")
	_, bob := env.register(t, "bob")

	conn := env.dialWS(t, ctx)
	identify(t, ctx, conn, alice)

	rec := env.do(t, http.MethodPost, "/api/v1/posts", alice, PostRequest{Title: "news", Content: "body"})
	var post proto.Post
	decode(t, rec, &post)

	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/posts/%d/like", post.ID), bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("like: %d %s", rec.Code, rec.Body.String())
	}

	out := readOutbound(t, ctx, conn)
	if out.Type != proto.OutboundTypeEvent || out.Event != "notification" {
		t.Fatalf("expected notification event, got %+v", out)
	}
	var n proto.Notification
	if err := json.Unmarshal(out.Data, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Type != "like" || n.FromUsername != "bob" || n.PostID != post.ID || n.PostTitle != "news" {
		t.Fatalf("unexpected notification: %+v", n)
	}
}
