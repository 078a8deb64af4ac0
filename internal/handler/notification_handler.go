package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// NotificationHandler exposes notification history
type NotificationHandler struct {
	history NotificationLister
	log     *logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(history NotificationLister, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		history: history,
		log:     log,
	}
}

// GetNotifications lists a user's newest notifications
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := c.Param("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	notifications, err := h.history.ListNotifications(c.Request.Context(), userID, limit)
	if err != nil {
		h.log.Error("Failed to get notifications", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to get notifications", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  notifications,
		"total": len(notifications),
	})
}
