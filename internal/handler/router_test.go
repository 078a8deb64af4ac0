package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/middleware"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

type fakeScheduler struct {
	entries     []domain.ScheduleEntryView
	scheduleErr error
	scheduled   []string
	removed     bool
	runs        []domain.ActionKind
}

func (f *fakeScheduler) ScheduleUser(_ context.Context, userID string, announce bool) error {
	f.scheduled = append(f.scheduled, userID)
	return f.scheduleErr
}

func (f *fakeScheduler) UnscheduleUser(string) bool { return f.removed }

func (f *fakeScheduler) ActiveSchedules() []domain.ScheduleEntryView { return f.entries }

func (f *fakeScheduler) RunTrigger(_ context.Context, userID string, kind domain.ActionKind, _ time.Time) domain.TriggerOutcome {
	f.runs = append(f.runs, kind)
	return domain.TriggerOutcome{
		UserID:   userID,
		Kind:     kind,
		EventKey: kind.Events().Success,
		Result:   &domain.AutomationResult{UserID: userID, Kind: kind, Succeeded: true},
	}
}

type fakeProfiles struct {
	profiles map[string]*domain.UserAutomationProfile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*domain.UserAutomationProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

type fakeLeave struct {
	targets []time.Time
	onLeave bool
}

func (f *fakeLeave) IsUserOnLeave(_ context.Context, _ string, target time.Time) bool {
	f.targets = append(f.targets, target)
	return f.onLeave
}

type fakeSettings struct {
	credentials []domain.UpdateCredentialsRequest
	telegram    []domain.UpdateTelegramRequest
	err         error
}

func (f *fakeSettings) UpdateCredentials(_ context.Context, _ string, req domain.UpdateCredentialsRequest) error {
	f.credentials = append(f.credentials, req)
	return f.err
}

func (f *fakeSettings) UpdateTelegram(_ context.Context, _ string, req domain.UpdateTelegramRequest) error {
	f.telegram = append(f.telegram, req)
	return f.err
}

type fakeHistory struct {
	limit int
	err   error
}

func (f *fakeHistory) ListNotifications(_ context.Context, userID string, limit int) ([]*domain.Notification, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Notification{{ID: "n1", UserID: userID, EventKey: domain.EventCheckInSuccess}}, nil
}

type apiFixture struct {
	router    *gin.Engine
	scheduler *fakeScheduler
	profiles  *fakeProfiles
	leave     *fakeLeave
	settings  *fakeSettings
	history   *fakeHistory
	ready     error
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	f := &apiFixture{
		scheduler: &fakeScheduler{},
		profiles: &fakeProfiles{profiles: map[string]*domain.UserAutomationProfile{
			"u1": {UserID: "u1", Timezone: "Asia/Seoul"},
		}},
		leave:    &fakeLeave{},
		settings: &fakeSettings{},
		history:  &fakeHistory{},
	}
	automation := NewAutomationHandler(f.scheduler, f.profiles, f.leave, "UTC", log)
	automation.now = func() time.Time { return time.Date(2024, 3, 13, 23, 30, 0, 0, time.UTC) }

	f.router = NewRouter(Handlers{
		Schedules:     NewScheduleHandler(f.scheduler, log),
		Automation:    automation,
		Settings:      NewSettingsHandler(f.settings, log),
		Notifications: NewNotificationHandler(f.history, log),
	}, middleware.NewUserRateLimiter(1000, 1000), func(context.Context) error { return f.ready })
	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	f.ready = errors.New("mongo unreachable")
	w := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mongo unreachable")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "").Code)
}

func TestSchedulesAPI(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		f := newAPIFixture(t)
		f.scheduler.entries = []domain.ScheduleEntryView{{UserID: "u1", CheckInSpec: "CRON_TZ=Asia/Seoul 45 8 * * 1-5"}}

		w := f.do(http.MethodGet, "/api/v1/schedules", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("schedule user", func(t *testing.T) {
		f := newAPIFixture(t)
		f.scheduler.entries = []domain.ScheduleEntryView{{UserID: "u1"}}

		w := f.do(http.MethodPut, "/api/v1/schedules/u1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["scheduled"])
		assert.Equal(t, []string{"u1"}, f.scheduler.scheduled)
	})

	t.Run("schedule user left unscheduled", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPut, "/api/v1/schedules/u9", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode(t, w)["scheduled"])
	})

	t.Run("schedule validation error", func(t *testing.T) {
		f := newAPIFixture(t)
		f.scheduler.scheduleErr = apperrors.NewValidationError("invalid work start time", nil)

		w := f.do(http.MethodPut, "/api/v1/schedules/u1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperrors.CodeValidation, decode(t, w)["code"])
	})

	t.Run("schedule store error", func(t *testing.T) {
		f := newAPIFixture(t)
		f.scheduler.scheduleErr = errors.New("db down")

		w := f.do(http.MethodPut, "/api/v1/schedules/u1", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("unschedule", func(t *testing.T) {
		f := newAPIFixture(t)
		f.scheduler.removed = true

		w := f.do(http.MethodDelete, "/api/v1/schedules/u1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["removed"])
	})
}

func TestRunActionAPI(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		wantCode int
		wantKind domain.ActionKind
	}{
		{name: "check-in", action: "check-in", wantCode: http.StatusOK, wantKind: domain.ActionCheckIn},
		{name: "checkOut", action: "checkOut", wantCode: http.StatusOK, wantKind: domain.ActionCheckOut},
		{name: "unknown", action: "lunch", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			w := f.do(http.MethodPost, "/api/v1/automation/u1/"+tt.action, "")
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantKind != "" {
				assert.Equal(t, []domain.ActionKind{tt.wantKind}, f.scheduler.runs)
			} else {
				assert.Empty(t, f.scheduler.runs)
			}
		})
	}
}

func TestCheckLeaveAPI(t *testing.T) {
	t.Run("explicit date in the user's zone", func(t *testing.T) {
		f := newAPIFixture(t)
		f.leave.onLeave = true

		w := f.do(http.MethodGet, "/api/v1/leave/u1?date=2024-03-15", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp domain.LeaveCheckResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.OnLeave)
		assert.Equal(t, "2024-03-15", resp.Date)

		require.Len(t, f.leave.targets, 1)
		assert.Equal(t, "Asia/Seoul", f.leave.targets[0].Location().String())
		assert.Equal(t, 15, f.leave.targets[0].Day())
	})

	t.Run("default date is today in the user's zone", func(t *testing.T) {
		f := newAPIFixture(t)

		w := f.do(http.MethodGet, "/api/v1/leave/u1", "")
		require.Equal(t, http.StatusOK, w.Code)
		// 23:30 UTC on the 13th is already the 14th in Seoul
		assert.Equal(t, "2024-03-14", decode(t, w)["date"])
	})

	t.Run("bad date", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodGet, "/api/v1/leave/u1?date=15/03/2024", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodGet, "/api/v1/leave/ghost", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apperrors.CodeProfileNotFound, decode(t, w)["code"])
	})

	t.Run("store failure", func(t *testing.T) {
		f := newAPIFixture(t)
		f.profiles.err = errors.New("db down")
		w := f.do(http.MethodGet, "/api/v1/leave/u1", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSettingsAPI(t *testing.T) {
	t.Run("credentials", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPut, "/api/v1/settings/u1/credentials", `{"username":"kim","password":"pw"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, f.settings.credentials, 1)
		assert.Equal(t, "kim", f.settings.credentials[0].Username)
	})

	t.Run("credentials require username", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPut, "/api/v1/settings/u1/credentials", `{"password":"pw"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, f.settings.credentials)
	})

	t.Run("credentials for unknown profile", func(t *testing.T) {
		f := newAPIFixture(t)
		f.settings.err = apperrors.NewProfileNotFoundError("automation profile not found", domain.ErrProfileNotFound)
		w := f.do(http.MethodPut, "/api/v1/settings/u1/credentials", `{"username":"kim"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("telegram token", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPut, "/api/v1/settings/u1/telegram-token", `{"bot_token":"1:abc","chat_id":"42"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, f.settings.telegram, 1)
		assert.Equal(t, "42", f.settings.telegram[0].ChatID)
	})

	t.Run("telegram invalid body", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPut, "/api/v1/settings/u1/telegram-token", `{bad`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("internal failure", func(t *testing.T) {
		f := newAPIFixture(t)
		f.settings.err = errors.New("boom")
		w := f.do(http.MethodPut, "/api/v1/settings/u1/telegram-token", `{"bot_token":"1:abc"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apperrors.CodeInternal, decode(t, w)["code"])
	})
}

func TestNotificationsAPI(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/v1/notifications/u1?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.history.limit)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	f.history.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/v1/notifications/u1", "").Code)
}

func TestAPIRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	sched := &fakeScheduler{}
	router := NewRouter(Handlers{
		Schedules:     NewScheduleHandler(sched, log),
		Automation:    NewAutomationHandler(sched, &fakeProfiles{}, &fakeLeave{}, "UTC", log),
		Settings:      NewSettingsHandler(&fakeSettings{}, log),
		Notifications: NewNotificationHandler(&fakeHistory{}, log),
	}, middleware.NewUserRateLimiter(0.001, 1), nil)

	call := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/automation/u1/check-in", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
	assert.Len(t, sched.runs, 1)
}
