package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// SettingsHandler handles credential and channel updates
type SettingsHandler struct {
	settings SettingsUpdater
	log      *logger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsUpdater, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		log:      log,
	}
}

// UpdateCredentials sets or clears the portal credentials
func (h *SettingsHandler) UpdateCredentials(c *gin.Context) {
	var req domain.UpdateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}

	userID := c.Param("user_id")
	if err := h.settings.UpdateCredentials(c.Request.Context(), userID, req); err != nil {
		h.log.Error("Failed to update credentials", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "updated": true})
}

// UpdateTelegram sets or clears the Telegram bot token
func (h *SettingsHandler) UpdateTelegram(c *gin.Context) {
	var req domain.UpdateTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}

	userID := c.Param("user_id")
	if err := h.settings.UpdateTelegram(c.Request.Context(), userID, req); err != nil {
		h.log.Error("Failed to update telegram settings", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "updated": true})
}
