package handler

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

const dateLayout = "2006-01-02"

// AutomationHandler handles manual runs and leave lookups
type AutomationHandler struct {
	scheduler   ScheduleManager
	profiles    ProfileReader
	leave       LeaveChecker
	defaultZone string
	now         func() time.Time
	log         *logger.Logger
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(scheduler ScheduleManager, profiles ProfileReader, leave LeaveChecker, defaultZone string, log *logger.Logger) *AutomationHandler {
	return &AutomationHandler{
		scheduler:   scheduler,
		profiles:    profiles,
		leave:       leave,
		defaultZone: defaultZone,
		now:         time.Now,
		log:         log,
	}
}

// RunAction runs the full trigger path for one action synchronously
func (h *AutomationHandler) RunAction(c *gin.Context) {
	userID := c.Param("user_id")
	kind, err := domain.ParseActionKind(c.Param("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("action must be check-in or check-out", err))
		return
	}

	h.log.Info("Manual automation run requested", "user_id", userID, "action", string(kind))
	outcome := h.scheduler.RunTrigger(c.Request.Context(), userID, kind, h.now())
	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

// CheckLeave reports whether the user is on leave on ?date= (default today)
func (h *AutomationHandler) CheckLeave(c *gin.Context) {
	userID := c.Param("user_id")

	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if stderrors.Is(err, domain.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, errors.NewProfileNotFoundError("automation profile not found", err))
			return
		}
		h.log.Error("Failed to load profile", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to load profile", err))
		return
	}
	loc, _ := profile.Location(h.defaultZone)

	day := h.now().In(loc)
	if raw := c.Query("date"); raw != "" {
		day, err = time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, errors.NewValidationError("date must be YYYY-MM-DD", err))
			return
		}
	}
	target := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)

	c.JSON(http.StatusOK, domain.LeaveCheckResponse{
		UserID:  userID,
		Date:    target.Format(dateLayout),
		OnLeave: h.leave.IsUserOnLeave(c.Request.Context(), userID, target),
	})
}
