package http

import (
	"time"

	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/proto"
	"github.com/parleyhq/parley-server/internal/service/messages"
	"github.com/parleyhq/parley-server/internal/store"
)

// ConversationResponse is one entry of the conversation list.
type ConversationResponse struct {
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username"`
	LastMessageID   int64     `json:"last_message_id"`
	LastMessage     string    `json:"last_message"`
	LastAttachments int       `json:"last_attachments"`
	LastMessageAt   time.Time `json:"last_message_at"`
	LastSenderID    int64     `json:"last_sender_id"`
	UnreadCount     int       `json:"unread_count"`
}

func messageToProto(m *store.Message) proto.Message {
	out := proto.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		Attachments: make([]proto.Attachment, 0, len(m.Attachments)),
		IsRead:      m.IsRead,
		Edited:      m.Edited,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, proto.Attachment{
			Filename:     a.Filename,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			Size:         a.Size,
			URL:          a.URL,
		})
	}
	return out
}

func messagesToProto(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToProto(m))
	}
	return out
}

func conversationsToResponse(sums []messages.Summary) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(sums))
	for _, s := range sums {
		out = append(out, ConversationResponse{
			UserID:          s.UserID,
			Username:        s.Username,
			LastMessageID:   s.LastMessageID,
			LastMessage:     s.LastMessage,
			LastAttachments: s.LastAttachments,
			LastMessageAt:   s.LastMessageAt,
			LastSenderID:    s.LastSenderID,
			UnreadCount:     s.UnreadCount,
		})
	}
	return out
}

func postToProto(p *store.Post) proto.Post {
	out := proto.Post{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorUsername: p.AuthorUsername,
		Title:          p.Title,
		Content:        p.Content,
		Likes:          p.Likes,
		CommentCount:   p.CommentCount,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Comments != nil {
		out.Comments = make([]proto.Comment, 0, len(p.Comments))
		for i := range p.Comments {
			out.Comments = append(out.Comments, commentToProto(&p.Comments[i]))
		}
	}
	return out
}

func postsToProto(posts []*store.Post) []proto.Post {
	out := make([]proto.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, postToProto(p))
	}
	return out
}

func commentToProto(c *store.Comment) proto.Comment {
	return proto.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		ParentID:  c.ParentID,
		UserID:    c.UserID,
		Username:  c.Username,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		EditedAt:  c.EditedAt,
	}
}

func notificationToProto(n *store.Notification) proto.Notification {
	return proto.Notification{
		ID:           n.ID,
		Type:         n.Type,
		FromUserID:   n.FromUserID,
		FromUsername: n.FromUsername,
		PostID:       n.PostID,
		PostTitle:    n.PostTitle,
		CommentID:    n.CommentID,
		CreatedAt:    n.CreatedAt,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventIdentified:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventIdentified{UserID: event.UserID},
		}
	case core.EventPong:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	case core.EventNewMessage, core.EventMessageUpdated:
		if event.Message == nil {
			return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  messageToProto(event.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventMessageDeleted{ID: event.MessageID},
		}
	case core.EventConversationRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventConversationRead{ReaderID: event.UserID, Count: event.Count},
		}
	case core.EventNotification:
		if event.Notification == nil {
			return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  notificationToProto(event.Notification),
		}
	case core.EventError:
		if event.Error == nil {
			return errorOutbound(core.ErrCodeInternal, "unknown error")
		}
		return errorOutbound(event.Error.Code, event.Error.Message)
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func errorOutbound(code, msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}
