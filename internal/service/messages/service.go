package messages

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

// Common errors for message operations.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// MaxContentLength is the maximum message length in characters.
	MaxContentLength = 1000
	// DefaultThreadLimit is the page size for a conversation thread.
	DefaultThreadLimit = 50
	// MaxThreadLimit caps the page size for a conversation thread.
	MaxThreadLimit = 200
)

// Notifier pushes realtime events to online users.
type Notifier interface {
	NewMessage(msg *store.Message) bool
	MessageUpdated(recipientID int64, msg *store.Message) bool
	MessageDeleted(recipientID, messageID int64) bool
	ConversationRead(senderID, readerID, count int64) bool
}

// FileRemover deletes stored attachment files.
type FileRemover interface {
	Remove(filename string) error
}

// SendInput is a message about to be sent.
type SendInput struct {
	SenderID    int64
	ReceiverID  int64
	Content     string
	Attachments []store.Attachment
}

// InboxEntry is a received message with its sender's username.
type InboxEntry struct {
	Message        *store.Message
	SenderUsername string
}

// Service provides direct messaging business logic.
type Service struct {
	store    store.Store
	notifier Notifier
	files    FileRemover
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a messaging service. notifier and files may be nil.
func New(st store.Store, notifier Notifier, files FileRemover, logger *zerolog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		files:    files,
		log:      logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Send persists a message and pushes it to the receiver if they are online.
func (s *Service) Send(ctx context.Context, in SendInput) (*store.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: content or attachments required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArgument, MaxContentLength)
	}
	if in.ReceiverID <= 0 {
		return nil, fmt.Errorf("%w: receiver id", ErrInvalidArgument)
	}
	if in.ReceiverID == in.SenderID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidArgument)
	}
	if err := s.requireUser(ctx, in.ReceiverID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		Content:     content,
		Attachments: in.Attachments,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	s.metrics.MessageSent()

	// Storage is the source of truth; the push is best effort.
	if s.notifier != nil {
		s.notifier.NewMessage(msg)
	}
	return msg, nil
}

// Inbox returns messages received by userID, newest first.
func (s *Service) Inbox(ctx context.Context, userID int64) ([]InboxEntry, error) {
	msgs, err := s.store.ListInbox(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}

	out := make([]InboxEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := InboxEntry{Message: m}
		if u, ok := users[m.SenderID]; ok {
			entry.SenderUsername = u.Username
		}
		out = append(out, entry)
	}
	return out, nil
}

// Conversation returns one page of the thread between userID and otherID,
// oldest first. limit is clamped to [1, MaxThreadLimit]; zero means default.
func (s *Service) Conversation(ctx context.Context, userID, otherID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if otherID <= 0 {
		return nil, fmt.Errorf("%w: user id", ErrInvalidArgument)
	}
	if err := s.requireUser(ctx, otherID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultThreadLimit
	case limit > MaxThreadLimit:
		limit = MaxThreadLimit
	}

	msgs, err := s.store.ListConversation(ctx, userID, otherID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// Conversations summarizes every conversation userID takes part in.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]Summary, error) {
	msgs, err := s.store.ListUserMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	summaries := Summarize(userID, msgs)
	if len(summaries) == 0 {
		return summaries, nil
	}

	ids := make([]int64, 0, len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.UserID)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load counterparts: %w", err)
	}
	for i := range summaries {
		if u, ok := users[summaries[i].UserID]; ok {
			summaries[i].Username = u.Username
		}
	}
	return summaries, nil
}

// UnreadCount returns how many received messages userID has not read.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead marks a single message read. Only the receiver may do this;
// an already read message is returned unchanged.
func (s *Service) MarkRead(ctx context.Context, userID, messageID int64) (*store.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != userID {
		return nil, fmt.Errorf("%w: only the receiver can mark a message read", ErrForbidden)
	}
	if msg.IsRead {
		return msg, nil
	}

	changed, err := s.store.MarkMessageRead(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	msg.IsRead = true
	if changed && s.notifier != nil {
		s.notifier.ConversationRead(msg.SenderID, userID, 1)
	}
	return msg, nil
}

// MarkConversationRead marks every unread message otherID sent to userID as
// read in one update and returns how many changed.
func (s *Service) MarkConversationRead(ctx context.Context, userID, otherID int64) (int64, error) {
	if otherID <= 0 {
		return 0, fmt.Errorf("%w: user id", ErrInvalidArgument)
	}
	if otherID == userID {
		return 0, fmt.Errorf("%w: cannot read a conversation with yourself", ErrInvalidArgument)
	}
	if err := s.requireUser(ctx, otherID); err != nil {
		return 0, err
	}

	n, err := s.store.MarkConversationRead(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	if n > 0 && s.notifier != nil {
		s.notifier.ConversationRead(otherID, userID, n)
	}
	return n, nil
}

// Edit replaces the content of an unread message. Only its sender may edit.
func (s *Service) Edit(ctx context.Context, userID, messageID int64, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArgument, MaxContentLength)
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", ErrForbidden)
	}
	if msg.IsRead {
		return nil, fmt.Errorf("%w: message already read", ErrInvalidState)
	}

	editedAt := s.now().UTC()
	changed, err := s.store.UpdateMessageContent(ctx, msg.ID, userID, content, editedAt)
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	if !changed {
		// Read (or deleted) between the check and the update.
		return nil, fmt.Errorf("%w: message already read", ErrInvalidState)
	}

	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &editedAt
	if s.notifier != nil {
		s.notifier.MessageUpdated(msg.ReceiverID, msg)
	}
	return msg, nil
}

// Delete removes a message. Either participant may delete it.
func (s *Service) Delete(ctx context.Context, userID, messageID int64) error {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return fmt.Errorf("%w: not a participant", ErrForbidden)
	}

	if err := s.store.DeleteMessage(ctx, msg.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
		}
		return fmt.Errorf("delete message: %w", err)
	}

	if s.files != nil {
		for _, a := range msg.Attachments {
			if err := s.files.Remove(a.Filename); err != nil {
				s.log.Warn().Err(err).Str("file", a.Filename).Int64("message_id", msg.ID).Msg("failed to remove attachment")
			}
		}
	}
	if s.notifier != nil {
		s.notifier.MessageDeleted(msg.Counterpart(userID), msg.ID)
	}
	return nil
}

func (s *Service) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: message id", ErrInvalidArgument)
	}
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}
