package proto

import "time"

// Post is the wire form of a post. Comments are omitted in feed listings.
type Post struct {
	ID             int64     `json:"id"`
	AuthorID       int64     `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Likes          int64     `json:"likes"`
	CommentCount   int64     `json:"comment_count"`
	Comments       []Comment `json:"comments,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Comment is the wire form of a comment or reply.
type Comment struct {
	ID        int64      `json:"id"`
	PostID    int64      `json:"post_id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// Like reports a post's like state after a toggle.
type Like struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}

// Notification is the wire form of a notification, shared by HTTP and websocket.
type Notification struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	FromUserID   int64     `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	PostID       int64     `json:"post_id"`
	PostTitle    string    `json:"post_title"`
	CommentID    *int64    `json:"comment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
