package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/services/comment"
)

// CommentHandler handles the review comment thread
type CommentHandler struct {
	commentService *comment.CommentService
	log            *logrus.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(commentService *comment.CommentService, log *logrus.Logger) *CommentHandler {
	return &CommentHandler{commentService: commentService, log: log}
}

// AddCommentRequest represents a new comment
type AddCommentRequest struct {
	Body string `json:"body"`
}

// ListComments returns the thread of a report, oldest first
func (h *CommentHandler) ListComments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	comments, err := h.commentService.List(c.Request.Context(), actor, reportID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "comments": comments})
}

// AddComment appends to the thread of a report
func (h *CommentHandler) AddComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	added, err := h.commentService.Add(c.Request.Context(), actor, reportID, req.Body)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "comment": added})
}

// DeleteComment removes a comment
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	commentID, ok := uuidParam(c, "comment_id")
	if !ok {
		return
	}

	if err := h.commentService.Remove(c.Request.Context(), actor, commentID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Comment deleted"})
}
