package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/config"
	"github.com/parleyhq/parley-server/internal/proto"
	"github.com/parleyhq/parley-server/internal/service/messages"
	"github.com/parleyhq/parley-server/internal/store"
	"github.com/parleyhq/parley-server/internal/upload"
)

// multipartOverhead leaves room for form fields beside the files.
const multipartOverhead = 1 << 20

// MessageHandlers provides HTTP handlers for direct messages.
type MessageHandlers struct {
	svc     *messages.Service
	uploads *upload.Store
	maxBody int64
	log     *zerolog.Logger
}

// NewMessageHandlers creates message handlers. uploads may be nil, which
// disables attachments.
func NewMessageHandlers(svc *messages.Service, uploads *upload.Store, cfg *config.Config, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		svc:     svc,
		uploads: uploads,
		maxBody: cfg.MaxUploadBytes*int64(cfg.MaxAttachments) + multipartOverhead,
		log:     logger,
	}
}

// SendMessageRequest is the JSON form of a send.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" form:"receiver_id"`
	Content    string `json:"content" form:"content"`
}

// EditMessageRequest carries new content for an edit.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// Send stores a message, with optional multipart attachments.
// POST /api/v1/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	var req SendMessageRequest
	var attachments []store.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
		if err := c.ShouldBind(&req); err != nil {
			writeFormError(c, err)
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			writeFormError(c, err)
			return
		}
		if files := form.File["files"]; len(files) > 0 {
			if h.uploads == nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachments are disabled"})
				return
			}
			attachments, err = h.uploads.SaveAll(files)
			if err != nil {
				h.writeUploadError(c, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), messages.SendInput{
		SenderID:    uid,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		Attachments: attachments,
	})
	if err != nil {
		if h.uploads != nil {
			h.uploads.Discard(attachments)
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, messageToProto(msg))
}

// Inbox lists received messages.
// GET /api/v1/messages/inbox
func (h *MessageHandlers) Inbox(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	entries, err := h.svc.Inbox(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]proto.Message, 0, len(entries))
	for _, e := range entries {
		m := messageToProto(e.Message)
		m.SenderUsername = e.SenderUsername
		out = append(out, m)
	}
	c.JSON(http.StatusOK, out)
}

// UnreadCount returns the number of unread received messages.
// GET /api/v1/messages/unread/count
func (h *MessageHandlers) UnreadCount(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	n, err := h.svc.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// Conversations lists conversation summaries, most recent first.
// GET /api/v1/messages/conversations
func (h *MessageHandlers) Conversations(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	sums, err := h.svc.Conversations(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationsToResponse(sums))
}

// Conversation returns the thread with one user, oldest first.
// GET /api/v1/messages/conversations/:userId?limit=&before=
func (h *MessageHandlers) Conversation(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	otherID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &id
	}

	msgs, err := h.svc.Conversation(c.Request.Context(), uid, otherID, limit, before)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messagesToProto(msgs))
}

// MarkConversationRead marks everything the other user sent as read.
// PATCH /api/v1/messages/conversations/:userId/read
func (h *MessageHandlers) MarkConversationRead(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	otherID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	n, err := h.svc.MarkConversationRead(c.Request.Context(), uid, otherID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": n})
}

// MarkRead marks one received message as read.
// PATCH /api/v1/messages/:id/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.svc.MarkRead(c.Request.Context(), uid, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageToProto(msg))
}

// Edit changes the content of an unread message.
// PUT /api/v1/messages/:id
func (h *MessageHandlers) Edit(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.svc.Edit(c.Request.Context(), uid, id, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageToProto(msg))
}

// Delete removes a message the caller sent or received.
// DELETE /api/v1/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), uid, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *MessageHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrInvalidArgument), errors.Is(err, messages.ErrInvalidState):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("message request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// writeFormError reports a multipart parse failure, telling an oversized body
// apart from a malformed one.
func writeFormError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid form body"})
}

func (h *MessageHandlers) writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	case errors.Is(err, upload.ErrTooManyFiles), errors.Is(err, upload.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("failed to store attachments")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
