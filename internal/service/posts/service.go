package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/log"
	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/store"
)

// Common errors for post operations.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// MaxTitleLength is the maximum post title length in characters.
	MaxTitleLength = 100
	// MaxContentLength is the maximum post body length in characters.
	MaxContentLength = 10000
	// MaxCommentLength is the maximum comment or reply length in characters.
	MaxCommentLength = 1000
	// DefaultPageSize is the page size for the post feed.
	DefaultPageSize = 20
	// MaxPageSize caps the page size for the post feed.
	MaxPageSize = 100
)

// Notifier pushes stored notifications to online users.
type Notifier interface {
	Notification(n *store.Notification) bool
}

// LikeResult is the state of a post after a like toggle.
type LikeResult struct {
	Liked bool
	Likes int64
}

// Service provides posts, comments, likes and notifications.
type Service struct {
	store    store.Store
	notifier Notifier
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a post service. notifier may be nil.
func New(st store.Store, notifier Notifier, logger *zerolog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		log:      logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Create publishes a new post by authorID.
func (s *Service) Create(ctx context.Context, authorID int64, title, content string) (*store.Post, error) {
	title, content, err := validatePost(title, content)
	if err != nil {
		return nil, err
	}
	author, err := s.user(ctx, authorID)
	if err != nil {
		return nil, err
	}

	post := &store.Post{
		AuthorID:       author.ID,
		AuthorUsername: author.Username,
		Title:          title,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Comments = []store.Comment{}
	return post, nil
}

// List returns one page of the feed, newest first. limit is clamped to
// [1, MaxPageSize]; zero means default.
func (s *Service) List(ctx context.Context, limit int, beforeID *int64) ([]*store.Post, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	posts, err := s.store.ListPosts(ctx, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Get returns a post with its comments and replies.
func (s *Service) Get(ctx context.Context, id int64) (*store.Post, error) {
	return s.getPost(ctx, id)
}

// Update changes the title and content of a post. Only its author may edit.
func (s *Service) Update(ctx context.Context, userID, id int64, title, content string) (*store.Post, error) {
	title, content, err := validatePost(title, content)
	if err != nil {
		return nil, err
	}

	post, err := s.getPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, fmt.Errorf("%w: only the author can edit a post", ErrForbidden)
	}

	changed, err := s.store.UpdatePost(ctx, post.ID, userID, title, content, s.now())
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	return s.getPost(ctx, id)
}

// Delete removes a post with everything attached to it. Only its author may delete.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return fmt.Errorf("%w: only the author can delete a post", ErrForbidden)
	}

	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: post %d", ErrNotFound, id)
		}
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ToggleLike likes the post for userID, or removes an existing like.
// Only a new like notifies the author.
func (s *Service) ToggleLike(ctx context.Context, userID, postID int64) (LikeResult, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return LikeResult{}, err
	}

	liked, likes, err := s.store.ToggleLike(ctx, post.ID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LikeResult{}, fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return LikeResult{}, fmt.Errorf("toggle like: %w", err)
	}

	if liked {
		s.notify(ctx, &store.Notification{
			UserID:     post.AuthorID,
			FromUserID: userID,
			Type:       store.NotificationLike,
			PostID:     post.ID,
			PostTitle:  post.Title,
		})
	}
	return LikeResult{Liked: liked, Likes: likes}, nil
}

// AddComment comments on a post and notifies its author.
func (s *Service) AddComment(ctx context.Context, userID, postID int64, content string) (*store.Comment, error) {
	content, err := validateComment(content)
	if err != nil {
		return nil, err
	}
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment, err := s.saveComment(ctx, userID, post.ID, nil, content)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &store.Notification{
		UserID:     post.AuthorID,
		FromUserID: userID,
		Type:       store.NotificationComment,
		PostID:     post.ID,
		PostTitle:  post.Title,
		CommentID:  &comment.ID,
	})
	return comment, nil
}

// Reply answers a top-level comment and notifies the comment's author.
func (s *Service) Reply(ctx context.Context, userID, postID, commentID int64, content string) (*store.Comment, error) {
	content, err := validateComment(content)
	if err != nil {
		return nil, err
	}
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	parent, err := s.commentOnPost(ctx, post.ID, commentID)
	if err != nil {
		return nil, err
	}
	if parent.IsReply() {
		return nil, fmt.Errorf("%w: cannot reply to a reply", ErrInvalidArgument)
	}

	reply, err := s.saveComment(ctx, userID, post.ID, &parent.ID, content)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &store.Notification{
		UserID:     parent.UserID,
		FromUserID: userID,
		Type:       store.NotificationReply,
		PostID:     post.ID,
		PostTitle:  post.Title,
		CommentID:  &reply.ID,
	})
	return reply, nil
}

// UpdateReply edits a reply. Only its author may edit.
func (s *Service) UpdateReply(ctx context.Context, userID, postID, commentID, replyID int64, content string) (*store.Comment, error) {
	content, err := validateComment(content)
	if err != nil {
		return nil, err
	}
	reply, err := s.replyOf(ctx, postID, commentID, replyID)
	if err != nil {
		return nil, err
	}
	if reply.UserID != userID {
		return nil, fmt.Errorf("%w: only the author can edit a reply", ErrForbidden)
	}

	editedAt := s.now().UTC()
	changed, err := s.store.UpdateComment(ctx, reply.ID, userID, content, editedAt)
	if err != nil {
		return nil, fmt.Errorf("update reply: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
	}
	reply.Content = content
	reply.EditedAt = &editedAt
	return reply, nil
}

// DeleteReply removes a reply. Its author or the post's author may delete it.
func (s *Service) DeleteReply(ctx context.Context, userID, postID, commentID, replyID int64) error {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return err
	}
	reply, err := s.replyOf(ctx, post.ID, commentID, replyID)
	if err != nil {
		return err
	}
	if reply.UserID != userID && post.AuthorID != userID {
		return fmt.Errorf("%w: not allowed to delete this reply", ErrForbidden)
	}

	if err := s.store.DeleteComment(ctx, reply.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
		}
		return fmt.Errorf("delete reply: %w", err)
	}
	return nil
}

// Notifications lists userID's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	out, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// notify stores n and pushes it. Nobody is notified about their own actions.
// Failures are logged and never fail the triggering operation.
func (s *Service) notify(ctx context.Context, n *store.Notification) {
	if n.UserID == n.FromUserID {
		return
	}

	if from, err := s.store.GetUserByID(ctx, n.FromUserID); err == nil {
		n.FromUsername = from.Username
	}
	n.CreatedAt = s.now()
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).Int64("user_id", n.UserID).Str("type", n.Type).Int64("post_id", n.PostID).Msg("failed to store notification")
		return
	}
	s.metrics.NotificationCreated(n.Type)

	if s.notifier != nil {
		s.notifier.Notification(n)
	}
}

func (s *Service) saveComment(ctx context.Context, userID, postID int64, parentID *int64, content string) (*store.Comment, error) {
	author, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	comment := &store.Comment{
		PostID:    postID,
		ParentID:  parentID,
		UserID:    author.ID,
		Username:  author.Username,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AddComment(ctx, comment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Post or parent deleted concurrently.
			return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return comment, nil
}

func (s *Service) getPost(ctx context.Context, id int64) (*store.Post, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: post id", ErrInvalidArgument)
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// commentOnPost loads a comment and checks it belongs to postID.
func (s *Service) commentOnPost(ctx context.Context, postID, commentID int64) (*store.Comment, error) {
	if commentID <= 0 {
		return nil, fmt.Errorf("%w: comment id", ErrInvalidArgument)
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	if comment.PostID != postID {
		return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	return comment, nil
}

// replyOf loads replyID and checks it answers commentID on postID.
func (s *Service) replyOf(ctx context.Context, postID, commentID, replyID int64) (*store.Comment, error) {
	if commentID <= 0 {
		return nil, fmt.Errorf("%w: comment id", ErrInvalidArgument)
	}
	reply, err := s.commentOnPost(ctx, postID, replyID)
	if err != nil {
		return nil, err
	}
	if reply.ParentID == nil || *reply.ParentID != commentID {
		return nil, fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
	}
	return reply, nil
}

func (s *Service) user(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func validatePost(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return "", "", fmt.Errorf("%w: title and content are required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, MaxTitleLength)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", "", fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArgument, MaxContentLength)
	}
	return title, content, nil
}

func validateComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: comment is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidArgument, MaxCommentLength)
	}
	return content, nil
}
