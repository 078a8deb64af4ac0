// Package automation drives the attendance portal through a browser session:
// login, one attendance action, and verification.
package automation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/metrics"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

const errorIndicatorTimeout = 2 * time.Second

// ProfileStore loads automation profiles
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
}

// Decrypter opens secrets sealed by the secret codec
type Decrypter interface {
	Decrypt(token, saltHex string) (string, error)
}

// Executor performs one attendance action per call
type Executor struct {
	profiles      ProfileStore
	codec         Decrypter
	launcher      Launcher
	portal        config.PortalConfig
	actions       map[domain.ActionKind]action
	navTimeout    time.Duration
	actionTimeout time.Duration
	respTimeout   time.Duration
	screenshotDir string
	now           func() time.Time
	log           *logger.Logger
}

// NewExecutor creates a new automation executor
func NewExecutor(profiles ProfileStore, codec Decrypter, launcher Launcher, portal config.PortalConfig, browser config.BrowserConfig, log *logger.Logger) *Executor {
	return &Executor{
		profiles:      profiles,
		codec:         codec,
		launcher:      launcher,
		portal:        portal,
		actions:       buildActions(portal),
		navTimeout:    browser.NavigationTimeout,
		actionTimeout: browser.ActionTimeout,
		respTimeout:   browser.ResponseTimeout,
		screenshotDir: browser.ScreenshotDir,
		now:           time.Now,
		log:           log.With("component", "automation"),
	}
}

// run tracks the state of one invocation
type run struct {
	id     string
	userID string
	act    action
	state  State
	log    *logger.Logger
}

func (r *run) transition(to State) {
	if r.state.Terminal() {
		r.log.Warn("Ignoring transition out of a finished run", "from", r.state.String(), "to", to.String())
		return
	}
	if !CanTransition(r.state, to) {
		r.log.Warn("Illegal automation state transition", "from", r.state.String(), "to", to.String())
	}
	r.log.Debug("Automation state changed", "from", r.state.String(), "to", to.String())
	r.state = to
}

// Execute runs kind for userID. It never panics and never retries; every
// outcome, including failures, is described by the returned result.
func (e *Executor) Execute(ctx context.Context, userID string, kind domain.ActionKind) (result domain.AutomationResult) {
	started := e.now()
	r := &run{
		id:     uuid.NewString(),
		userID: userID,
		state:  StateIdle,
	}
	r.log = e.log.With("run_id", r.id, "user_id", userID, "action", string(kind))

	result = domain.AutomationResult{
		RunID:     r.id,
		UserID:    userID,
		Kind:      kind,
		StartedAt: started,
	}

	defer func() {
		result.Duration = e.now().Sub(started)
		if result.Stage == "" {
			result.Stage = r.state.String()
		}
		metrics.AutomationRuns.WithLabelValues(string(kind), result.Outcome()).Inc()
		if !result.IsTestMode {
			metrics.AutomationDuration.WithLabelValues(string(kind)).Observe(result.Duration.Seconds())
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Automation panicked", "panic", p)
			result = e.fail(r, result, apperrors.NewUnexpectedError(fmt.Sprintf("unexpected error: %v", p), nil))
		}
	}()

	act, ok := e.actions[kind]
	if !ok {
		return e.fail(r, result, apperrors.NewUnexpectedError(fmt.Sprintf("unsupported action kind %q", kind), nil))
	}
	r.act = act

	profile, err := e.profiles.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		if err == nil || errors.Is(err, domain.ErrProfileNotFound) {
			return e.fail(r, result, apperrors.NewProfileNotFoundError("profile not found", err))
		}
		return e.fail(r, result, apperrors.NewUnexpectedError("failed to load profile", err))
	}
	if strings.TrimSpace(profile.Username) == "" {
		return e.fail(r, result, apperrors.NewProfileNotFoundError("username missing", nil))
	}
	if !profile.HasCredential() {
		return e.fail(r, result, apperrors.NewCredentialNotConfiguredError("portal password is not set", nil))
	}

	password, err := e.codec.Decrypt(profile.EncryptedPassword, profile.PasswordSalt)
	if err != nil {
		return e.fail(r, result, apperrors.NewDecryptionFailedError("failed to decrypt portal password", err))
	}

	if profile.TestMode {
		r.log.Info("Test mode, simulating action")
		result.Succeeded = true
		result.IsTestMode = true
		result.Message = fmt.Sprintf("TEST MODE: %s simulated, no browser launched", act.label)
		return result
	}

	r.log.Info("Starting attendance automation")
	if err := e.drive(ctx, r, profile.Username, password); err != nil {
		return e.fail(r, result, err)
	}

	result.Succeeded = true
	result.Message = fmt.Sprintf("%s completed", act.label)
	r.log.Info("Attendance automation verified")
	return result
}

// drive owns the browser session. Resources are released page first, then
// context, then browser, each independently.
func (e *Executor) drive(ctx context.Context, r *run, username, password string) error {
	browser, err := e.launcher.Launch(ctx)
	if err != nil {
		return apperrors.NewUnexpectedError("failed to launch browser", err)
	}
	defer e.release(r, "browser", browser.Close)

	bctx, err := browser.NewContext()
	if err != nil {
		return apperrors.NewUnexpectedError("failed to create browser context", err)
	}
	defer e.release(r, "context", bctx.Close)

	page, err := bctx.NewPage()
	if err != nil {
		return apperrors.NewUnexpectedError("failed to open page", err)
	}
	defer e.release(r, "page", page.Close)

	if err := e.login(r, page, username, password); err != nil {
		e.screenshot(r, page)
		return err
	}
	if err := e.perform(r, page); err != nil {
		e.screenshot(r, page)
		return err
	}
	return nil
}

func (e *Executor) login(r *run, page Page, username, password string) error {
	r.transition(StateLoggingIn)

	if err := page.Navigate(e.portal.LoginURL, e.navTimeout); err != nil {
		return apperrors.NewLoginFailedError("failed to open login page", err)
	}
	if err := page.Fill(e.portal.UsernameSelector, username, e.actionTimeout); err != nil {
		return apperrors.NewLoginFailedError("failed to fill username", err)
	}
	if err := page.Fill(e.portal.PasswordSelector, password, e.actionTimeout); err != nil {
		return apperrors.NewLoginFailedError("failed to fill password", err)
	}
	if err := page.Click(e.portal.LoginButtonSelector, e.actionTimeout); err != nil {
		return apperrors.NewLoginFailedError("failed to submit login form", err)
	}
	if err := page.WaitVisible(e.portal.LoginSuccessIndicator, e.navTimeout); err != nil {
		return apperrors.NewLoginFailedError(e.withPortalError(page, "login success indicator did not appear"), err)
	}

	r.transition(StateLoggedIn)
	return nil
}

func (e *Executor) perform(r *run, page Page) error {
	actionURL := e.portal.ActionPageURL
	if actionURL != "" && actionURL != e.portal.LoginURL && page.URL() != actionURL {
		if err := page.Navigate(actionURL, e.navTimeout); err != nil {
			return apperrors.NewActionFailedError("failed to open action page", err)
		}
	}

	r.transition(StatePerformingAction)

	var waitResponse func() error
	if r.act.responsePattern != "" {
		var stopListening func()
		waitResponse, stopListening = page.WaitResponse(r.act.responsePattern, e.respTimeout)
		defer stopListening()
	}

	if err := page.Click(r.act.buttonSelector, e.actionTimeout); err != nil {
		return apperrors.NewActionFailedError(fmt.Sprintf("failed to click %s button", r.act.label), err)
	}

	if waitResponse != nil {
		if err := waitResponse(); err != nil {
			r.log.Warn("No stamp response observed, relying on page indicator", "error", err)
		}
	}

	if err := page.WaitVisible(r.act.successIndicator, e.actionTimeout); err != nil {
		return apperrors.NewActionFailedError(e.withPortalError(page, r.act.label+" success indicator did not appear"), err)
	}

	r.transition(StateVerified)
	return nil
}

// withPortalError appends the portal's visible error message, if any
func (e *Executor) withPortalError(page Page, msg string) string {
	if e.portal.ErrorIndicator == "" {
		return msg
	}
	text, err := page.Text(e.portal.ErrorIndicator, errorIndicatorTimeout)
	if err != nil || strings.TrimSpace(text) == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, strings.TrimSpace(text))
}

func (e *Executor) fail(r *run, result domain.AutomationResult, err error) domain.AutomationResult {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewUnexpectedError("unexpected error", err)
	}

	result.Succeeded = false
	result.FailureCode = appErr.Code
	result.Message = appErr.Message
	result.ErrorDetail = appErr.Error()
	result.Stage = r.state.String()

	if r.state != StateFailed {
		r.transition(StateFailed)
	}
	r.log.Error("Attendance automation failed", "code", appErr.Code, "stage", result.Stage, "error", appErr.Err)
	return result
}

func (e *Executor) release(r *run, resource string, closeFn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Panic while closing browser resource", "resource", resource, "panic", p)
		}
	}()
	if err := closeFn(); err != nil {
		r.log.Warn("Failed to close browser resource", "resource", resource, "error", err)
	}
}

// screenshot is best effort
func (e *Executor) screenshot(r *run, page Page) {
	if e.screenshotDir == "" {
		return
	}
	name := fmt.Sprintf("%s_%s_%s_%s.png",
		sanitize(r.userID), r.act.kind, r.state.String(), e.now().UTC().Format("20060102T150405"))
	path := filepath.Join(e.screenshotDir, name)
	if err := page.Screenshot(path); err != nil {
		r.log.Warn("Failed to capture screenshot", "path", path, "error", err)
		return
	}
	r.log.Info("Captured failure screenshot", "path", path)
}

func sanitize(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, s)
}
