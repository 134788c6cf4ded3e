package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/services/notification"
)

// NotificationHandler serves the caller's in-app notifications
type NotificationHandler struct {
	notificationService *notification.NotificationService
	log                 *logrus.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *notification.NotificationService, log *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, log: log}
}

// ListNotifications pages through the caller's notifications. ?unread=true keeps unread ones only.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)
	unreadOnly := c.Query("unread") == "true"

	items, total, err := h.notificationService.List(c.Request.Context(), actor, unreadOnly, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "notifications": items, "total": total})
}

// MarkRead flags one notification as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Notification marked as read"})
}

// MarkAllRead flags every unread notification of the caller
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	marked, err := h.notificationService.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "marked": marked})
}
