package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parleyhq/parley-server/internal/store"
)

// ==== PostStore implementation ====

const postSelect = `
	SELECT p.id, p.author_id, u.username, p.title, p.content, p.created_at, p.updated_at,
	       (SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
	       (SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id)
	FROM posts p
	JOIN users u ON u.id = p.author_id
`

func scanPost(r rowScanner) (*store.Post, error) {
	var post store.Post
	err := r.Scan(
		&post.ID,
		&post.AuthorID,
		&post.AuthorUsername,
		&post.Title,
		&post.Content,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.Likes,
		&post.CommentCount,
	)
	if err != nil {
		return nil, err
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()
	return &post, nil
}

const commentSelect = `
	SELECT c.id, c.post_id, c.parent_id, c.user_id, u.username, c.content, c.created_at, c.edited_at
	FROM post_comments c
	JOIN users u ON u.id = c.user_id
`

func scanComment(r rowScanner) (*store.Comment, error) {
	var comment store.Comment
	var parentID sql.NullInt64
	var editedAt sql.NullTime
	err := r.Scan(
		&comment.ID,
		&comment.PostID,
		&parentID,
		&comment.UserID,
		&comment.Username,
		&comment.Content,
		&comment.CreatedAt,
		&editedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		id := parentID.Int64
		comment.ParentID = &id
	}
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		comment.EditedAt = &t
	}
	comment.CreatedAt = comment.CreatedAt.UTC()
	return &comment, nil
}

// CreatePost persists a new post.
func (s *SQLiteStore) CreatePost(ctx context.Context, post *store.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (author_id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, post.AuthorID, post.Title, post.Content, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return translateErr("insert post", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	post.ID = id
	post.Likes = 0
	post.CommentCount = 0
	return nil
}

// GetPost retrieves a post and its comments.
func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (*store.Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return nil, translateErr("query post", err)
	}

	rows, err := s.db.QueryContext(ctx, commentSelect+`
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC, c.id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	post.Comments = make([]store.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		post.Comments = append(post.Comments, *comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return post, nil
}

// ListPosts returns posts newest first.
func (s *SQLiteStore) ListPosts(ctx context.Context, limit int, beforeID *int64) ([]*store.Post, error) {
	query := postSelect
	args := []any{}
	if beforeID != nil {
		query += ` WHERE p.id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*store.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// UpdatePost edits a post owned by authorID.
func (s *SQLiteStore) UpdatePost(ctx context.Context, id, authorID int64, title, content string, updatedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET title = ?, content = ?, updated_at = ?
		WHERE id = ? AND author_id = ?
	`, title, content, updatedAt.UTC(), id, authorID)
	if err != nil {
		return false, fmt.Errorf("update post: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeletePost removes a post; comments, likes and notifications cascade.
func (s *SQLiteStore) DeletePost(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "post", `DELETE FROM posts WHERE id = ?`, id)
}

// ToggleLike flips userID's like on a post inside one transaction.
func (s *SQLiteStore) ToggleLike(ctx context.Context, postID, userID int64) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, postID).Scan(&exists); err != nil {
		return false, 0, translateErr("query post", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("delete like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("get rows affected: %w", err)
	}

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)
		`, postID, userID, time.Now().UTC()); err != nil {
			return false, 0, translateErr("insert like", err)
		}
	}

	var likes int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID).Scan(&likes); err != nil {
		return false, 0, fmt.Errorf("count likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return liked, likes, nil
}

// AddComment persists a comment or reply.
func (s *SQLiteStore) AddComment(ctx context.Context, comment *store.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.CreatedAt = comment.CreatedAt.UTC()

	var parentID sql.NullInt64
	if comment.ParentID != nil {
		parentID = sql.NullInt64{Int64: *comment.ParentID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO post_comments (post_id, parent_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, comment.PostID, parentID, comment.UserID, comment.Content, comment.CreatedAt)
	if err != nil {
		return translateErr("insert comment", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	comment.ID = id
	comment.EditedAt = nil
	return nil
}

// GetComment retrieves a comment by ID.
func (s *SQLiteStore) GetComment(ctx context.Context, id int64) (*store.Comment, error) {
	comment, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, translateErr("query comment", err)
	}
	return comment, nil
}

// UpdateComment edits a comment owned by userID.
func (s *SQLiteStore) UpdateComment(ctx context.Context, id, userID int64, content string, editedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE post_comments
		SET content = ?, edited_at = ?
		WHERE id = ? AND user_id = ?
	`, content, editedAt.UTC(), id, userID)
	if err != nil {
		return false, fmt.Errorf("update comment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteComment removes a comment; replies cascade.
func (s *SQLiteStore) DeleteComment(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "comment", `DELETE FROM post_comments WHERE id = ?`, id)
}

func (s *SQLiteStore) deleteByID(ctx context.Context, what, query string, id int64) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete %s: %w", what, store.ErrNotFound)
	}
	return nil
}

// ==== NotificationStore implementation ====

// CreateNotification persists a notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	var commentID sql.NullInt64
	if n.CommentID != nil {
		commentID = sql.NullInt64{Int64: *n.CommentID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, from_user_id, type, post_id, comment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.UserID, n.FromUserID, n.Type, n.PostID, commentID, n.CreatedAt)
	if err != nil {
		return translateErr("insert notification", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns userID's notifications with sender and post title, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.user_id, n.from_user_id, u.username, n.type, n.post_id, p.title, n.comment_id, n.created_at
		FROM notifications n
		JOIN users u ON u.id = n.from_user_id
		JOIN posts p ON p.id = n.post_id
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC, n.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*store.Notification, 0)
	for rows.Next() {
		var n store.Notification
		var commentID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.FromUserID, &n.FromUsername, &n.Type, &n.PostID, &n.PostTitle, &commentID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if commentID.Valid {
			id := commentID.Int64
			n.CommentID = &id
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
