package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Attachment describes a file stored alongside a message.
type Attachment struct {
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	URL          string
}

// Message represents a persisted direct message.
type Message struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Content     string
	Attachments []Attachment
	IsRead      bool
	Edited      bool
	EditedAt    *time.Time
	CreatedAt   time.Time
}

// Counterpart returns the other participant of the message as seen by userID.
func (m *Message) Counterpart(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Post is a public post with its like count.
// Comments are only populated when a single post is loaded.
type Post struct {
	ID             int64
	AuthorID       int64
	AuthorUsername string
	Title          string
	Content        string
	Likes          int64
	CommentCount   int64
	Comments       []Comment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Comment is a comment on a post. Replies carry the id of the comment they answer.
type Comment struct {
	ID        int64
	PostID    int64
	ParentID  *int64
	UserID    int64
	Username  string
	Content   string
	CreatedAt time.Time
	EditedAt  *time.Time
}

// IsReply reports whether the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// Notification kinds.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationReply   = "reply"
)

// Notification tells a user someone interacted with their content.
type Notification struct {
	ID           int64
	UserID       int64
	FromUserID   int64
	FromUsername string
	Type         string
	PostID       int64
	PostTitle    string
	CommentID    *int64
	CreatedAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if username or email is taken.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUsersByIDs retrieves users keyed by id. Unknown ids are absent from the map.
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*User, error)

	// SearchUsers searches for users by username.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and its attachments, assigning ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListUserMessages returns every message sent or received by userID,
	// newest first (created_at DESC, id DESC).
	ListUserMessages(ctx context.Context, userID int64) ([]*Message, error)

	// ListConversation returns messages exchanged between two users in
	// chronological order. If beforeID is provided, only older messages are returned.
	ListConversation(ctx context.Context, userID, otherID int64, limit int, beforeID *int64) ([]*Message, error)

	// ListInbox returns messages received by userID, newest first.
	ListInbox(ctx context.Context, userID int64) ([]*Message, error)

	// CountUnread counts unread messages received by userID.
	CountUnread(ctx context.Context, userID int64) (int64, error)

	// MarkMessageRead flips is_read on a single unread message.
	// Returns false if the message was already read.
	MarkMessageRead(ctx context.Context, id int64) (bool, error)

	// MarkConversationRead flips every unread message from senderID to
	// receiverID in a single statement and returns the number changed.
	MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error)

	// UpdateMessageContent edits an unread message owned by senderID.
	// Returns false if no unread message matched.
	UpdateMessageContent(ctx context.Context, id, senderID int64, content string, editedAt time.Time) (bool, error)

	// DeleteMessage removes a message and its attachments.
	DeleteMessage(ctx context.Context, id int64) error
}

// PostStore handles posts, comments and likes.
type PostStore interface {
	// CreatePost persists a post, assigning ID, CreatedAt and UpdatedAt.
	CreatePost(ctx context.Context, post *Post) error

	// GetPost retrieves a post with its comments in chronological order.
	GetPost(ctx context.Context, id int64) (*Post, error)

	// ListPosts returns posts newest first without comments.
	// If beforeID is provided, only older posts are returned.
	ListPosts(ctx context.Context, limit int, beforeID *int64) ([]*Post, error)

	// UpdatePost edits a post owned by authorID. Returns false if nothing matched.
	UpdatePost(ctx context.Context, id, authorID int64, title, content string, updatedAt time.Time) (bool, error)

	// DeletePost removes a post with its comments, likes and notifications.
	DeletePost(ctx context.Context, id int64) error

	// ToggleLike adds userID's like to the post or removes it if present.
	// Returns whether the post is now liked and its like count.
	ToggleLike(ctx context.Context, postID, userID int64) (bool, int64, error)

	// AddComment persists a comment or reply, assigning ID and CreatedAt.
	AddComment(ctx context.Context, comment *Comment) error

	// GetComment retrieves a comment by ID.
	GetComment(ctx context.Context, id int64) (*Comment, error)

	// UpdateComment edits a comment owned by userID. Returns false if nothing matched.
	UpdateComment(ctx context.Context, id, userID int64, content string, editedAt time.Time) (bool, error)

	// DeleteComment removes a comment and its replies.
	DeleteComment(ctx context.Context, id int64) error
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// CreateNotification persists a notification, assigning ID and CreatedAt.
	CreateNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns notifications addressed to userID, newest first.
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	PostStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
