package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/parleyhq/parley-server/internal/store"
)

//go:embed schema.sql
var schema string

// inBatch bounds the number of ids bound into one IN (...) list.
const inBatch = 500

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema and then runs setup.
// Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// translateErr maps driver constraint errors onto store sentinels.
func translateErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", op, store.ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			// The referenced row is gone.
			return fmt.Errorf("%s: %w", op, store.ErrNotFound)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ==== UserStore implementation ====

const userColumns = `id, username, email, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*store.User, error) {
	var user store.User
	if err := r.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, email, passwordHash)
	if err != nil {
		return nil, translateErr("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateErr("query user", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, translateErr("query user", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, translateErr("query user", err)
	}
	return user, nil
}

// GetUsersByIDs retrieves users keyed by id.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*store.User, error) {
	users := make(map[int64]*store.User, len(ids))
	for start := 0; start < len(ids); start += inBatch {
		end := min(start+inBatch, len(ids))
		chunk := ids[start:end]

		query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query users: %w", err)
		}
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan user: %w", err)
			}
			users[user.ID] = user
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate users: %w", err)
		}
	}
	return users, nil
}

// SearchUsers searches for users whose username contains query.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username LIKE ? ESCAPE '\'
		ORDER BY username ASC
		LIMIT 20
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_id, receiver_id, content, is_read, edited, edited_at, created_at`

func scanMessage(r rowScanner) (*store.Message, error) {
	var msg store.Message
	var editedAt sql.NullTime
	err := r.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.IsRead,
		&msg.Edited,
		&editedAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		msg.EditedAt = &t
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

// SaveMessage persists a message and its attachments in one transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, is_read, edited, created_at)
		VALUES (?, ?, ?, 0, 0, ?)
	`, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt)
	if err != nil {
		return translateErr("insert message", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	for i, att := range msg.Attachments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_attachments (message_id, position, filename, original_name, mime_type, size, url)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, att.Filename, att.OriginalName, att.MimeType, att.Size, att.URL); err != nil {
			return fmt.Errorf("insert attachment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	msg.ID = id
	msg.IsRead = false
	msg.Edited = false
	msg.EditedAt = nil
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, translateErr("query message", err)
	}
	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListUserMessages returns every message involving userID, newest first.
func (s *SQLiteStore) ListUserMessages(ctx context.Context, userID int64) ([]*store.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID, userID)
}

// ListConversation returns messages between two users in chronological order.
func (s *SQLiteStore) ListConversation(ctx context.Context, userID, otherID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			  AND id < ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{userID, otherID, otherID, userID, *beforeID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{userID, otherID, otherID, userID, limit}
	}

	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// ListInbox returns messages received by userID, newest first.
func (s *SQLiteStore) ListInbox(ctx context.Context, userID int64) ([]*store.Message, error) {
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE receiver_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

// CountUnread counts unread messages received by userID.
func (s *SQLiteStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkMessageRead flips is_read on a single unread message.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ? AND is_read = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkConversationRead flips all unread messages from senderID to receiverID.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0
	`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// UpdateMessageContent edits an unread message owned by senderID.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, senderID int64, content string, editedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, edited = 1, edited_at = ?
		WHERE id = ? AND sender_id = ? AND is_read = 0
	`, content, editedAt.UTC(), id, senderID)
	if err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteMessage removes a message; attachments go with it via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete message: %w", store.ErrNotFound)
	}
	return nil
}

// queryMessages runs a message query and hydrates attachments once the rows are released.
func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if err := s.loadAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLiteStore) loadAttachments(ctx context.Context, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*store.Message, len(messages))
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
		ids = append(ids, msg.ID)
	}

	for start := 0; start < len(ids); start += inBatch {
		end := min(start+inBatch, len(ids))
		chunk := ids[start:end]

		rows, err := s.db.QueryContext(ctx, `
			SELECT message_id, filename, original_name, mime_type, size, url
			FROM message_attachments
			WHERE message_id IN (`+placeholders(len(chunk))+`)
			ORDER BY message_id, position
		`, int64Args(chunk)...)
		if err != nil {
			return fmt.Errorf("query attachments: %w", err)
		}

		for rows.Next() {
			var messageID int64
			var att store.Attachment
			if err := rows.Scan(&messageID, &att.Filename, &att.OriginalName, &att.MimeType, &att.Size, &att.URL); err != nil {
				rows.Close()
				return fmt.Errorf("scan attachment: %w", err)
			}
			if msg, ok := byID[messageID]; ok {
				msg.Attachments = append(msg.Attachments, att)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate attachments: %w", err)
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
