package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/proto"
	"github.com/parleyhq/parley-server/internal/service/posts"
)

// PostHandlers provides HTTP handlers for posts, comments, likes and notifications.
type PostHandlers struct {
	svc *posts.Service
	log *zerolog.Logger
}

// NewPostHandlers creates post handlers.
func NewPostHandlers(svc *posts.Service, logger *zerolog.Logger) *PostHandlers {
	return &PostHandlers{svc: svc, log: logger}
}

// PostRequest is the body for creating or editing a post.
type PostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CommentRequest is the body for a comment, reply or reply edit.
type CommentRequest struct {
	Content string `json:"content"`
}

// List returns the post feed, newest first.
// GET /api/v1/posts?limit=&before=
func (h *PostHandlers) List(c *gin.Context) {
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

	list, err := h.svc.List(c.Request.Context(), limit, before)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postsToProto(list))
}

// Get returns a post with its comments.
// GET /api/v1/posts/:id
func (h *PostHandlers) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	post, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postToProto(post))
}

// Create publishes a post.
// POST /api/v1/posts
func (h *PostHandlers) Create(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	post, err := h.svc.Create(c.Request.Context(), uid, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, postToProto(post))
}

// Update edits a post the caller wrote.
// PUT /api/v1/posts/:id
func (h *PostHandlers) Update(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	post, err := h.svc.Update(c.Request.Context(), uid, id, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postToProto(post))
}

// Delete removes a post the caller wrote.
// DELETE /api/v1/posts/:id
func (h *PostHandlers) Delete(c *gin.Context) {
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

// ToggleLike likes or unlikes a post.
// PATCH /api/v1/posts/:id/like
func (h *PostHandlers) ToggleLike(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.ToggleLike(c.Request.Context(), uid, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proto.Like{Liked: res.Liked, Likes: res.Likes})
}

// AddComment comments on a post.
// POST /api/v1/posts/:id/comment
func (h *PostHandlers) AddComment(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	comment, err := h.svc.AddComment(c.Request.Context(), uid, id, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentToProto(comment))
}

// Reply answers a comment.
// POST /api/v1/posts/:id/comment/:commentId/reply
func (h *PostHandlers) Reply(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentId")
	if !ok {
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	reply, err := h.svc.Reply(c.Request.Context(), uid, postID, commentID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentToProto(reply))
}

// UpdateReply edits a reply the caller wrote.
// PATCH /api/v1/posts/:id/comment/:commentId/reply/:replyId
func (h *PostHandlers) UpdateReply(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	postID, commentID, replyID, ok := replyPath(c)
	if !ok {
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	reply, err := h.svc.UpdateReply(c.Request.Context(), uid, postID, commentID, replyID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentToProto(reply))
}

// DeleteReply removes a reply.
// DELETE /api/v1/posts/:id/comment/:commentId/reply/:replyId
func (h *PostHandlers) DeleteReply(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}
	postID, commentID, replyID, ok := replyPath(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteReply(c.Request.Context(), uid, postID, commentID, replyID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Notifications lists the caller's notifications.
// GET /api/v1/notifications
func (h *PostHandlers) Notifications(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
		return
	}

	list, err := h.svc.Notifications(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]proto.Notification, 0, len(list))
	for _, n := range list {
		out = append(out, notificationToProto(n))
	}
	c.JSON(http.StatusOK, out)
}

func replyPath(c *gin.Context) (postID, commentID, replyID int64, ok bool) {
	if postID, ok = pathID(c, "id"); !ok {
		return
	}
	if commentID, ok = pathID(c, "commentId"); !ok {
		return
	}
	replyID, ok = pathID(c, "replyId")
	return
}

func (h *PostHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, posts.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, posts.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, posts.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("post request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
