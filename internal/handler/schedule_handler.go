package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// ScheduleHandler handles live schedule requests
type ScheduleHandler struct {
	scheduler ScheduleManager
	log       *logger.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(scheduler ScheduleManager, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: scheduler,
		log:       log,
	}
}

// GetSchedules lists every user's live triggers
func (h *ScheduleHandler) GetSchedules(c *gin.Context) {
	schedules := h.scheduler.ActiveSchedules()
	c.JSON(http.StatusOK, gin.H{
		"data":  schedules,
		"total": len(schedules),
	})
}

// ScheduleUser rebuilds one user's triggers from the stored profile
func (h *ScheduleHandler) ScheduleUser(c *gin.Context) {
	userID := c.Param("user_id")

	if err := h.scheduler.ScheduleUser(c.Request.Context(), userID, true); err != nil {
		h.log.Error("Failed to schedule user", "user_id", userID, "error", err)
		if errors.CodeOf(err) == "" {
			err = errors.NewInternalError("Failed to schedule user", err)
		}
		respondError(c, err)
		return
	}

	for _, entry := range h.scheduler.ActiveSchedules() {
		if entry.UserID == userID {
			c.JSON(http.StatusOK, gin.H{"scheduled": true, "data": entry})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": false, "data": domain.ScheduleEntryView{UserID: userID}})
}

// UnscheduleUser cancels one user's triggers
func (h *ScheduleHandler) UnscheduleUser(c *gin.Context) {
	userID := c.Param("user_id")
	removed := h.scheduler.UnscheduleUser(userID)
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "removed": removed})
}
