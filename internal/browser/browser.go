// Package browser implements the automation browser session on top of go-rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vhvplatform/go-attendance-service/internal/automation"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// ErrNoMatchingResponse is returned when no network response matched before the timeout
var ErrNoMatchingResponse = errors.New("no matching network response")

// Launcher starts a fresh Chromium process per session
type Launcher struct {
	cfg config.BrowserConfig
	log *logger.Logger
}

// NewLauncher creates a new rod launcher
func NewLauncher(cfg config.BrowserConfig, log *logger.Logger) *Launcher {
	return &Launcher{cfg: cfg, log: log.With("component", "browser")}
}

// Launch starts the browser process and connects to it
func (l *Launcher) Launch(ctx context.Context) (automation.Browser, error) {
	// leakless is disabled to avoid AV false positives and extra helper binaries
	lc := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		Leakless(false)
	if l.cfg.Bin != "" {
		lc = lc.Bin(l.cfg.Bin)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	l.log.Debug("Browser launched", "headless", l.cfg.Headless)
	return &Browser{browser: b, launcher: lc, ctx: ctx, userAgent: l.cfg.UserAgent}, nil
}

// Browser is a connected browser process
type Browser struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	ctx       context.Context
	userAgent string
}

// NewContext creates an incognito browsing context
func (b *Browser) NewContext() (automation.BrowserContext, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, err
	}
	return &Context{browser: incognito, ctx: b.ctx, userAgent: b.userAgent}, nil
}

// Close shuts the browser down and removes its profile directory
func (b *Browser) Close() error {
	err := b.browser.Close()
	if err != nil {
		b.launcher.Kill()
	}
	b.launcher.Cleanup()
	return err
}

// Context is an incognito browser context
type Context struct {
	browser   *rod.Browser
	ctx       context.Context
	userAgent string
}

// NewPage opens a blank tab in the context
func (c *Context) NewPage() (automation.Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.userAgent}); err != nil {
			_ = page.Close()
			return nil, err
		}
	}
	return &Page{page: page, ctx: c.ctx}, nil
}

// Close disposes the incognito context
func (c *Context) Close() error {
	return c.browser.Close()
}

// Page wraps a rod page with bounded operations
type Page struct {
	page *rod.Page
	ctx  context.Context
}

// Navigate loads url and waits for the load event
func (p *Page) Navigate(url string, timeout time.Duration) error {
	page := p.page.Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// Fill replaces the content of the input matched by selector
func (p *Page) Fill(selector, value string, timeout time.Duration) error {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// Click clicks the element matched by selector
func (p *Page) Click(selector string, timeout time.Duration) error {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitVisible waits until selector is present and visible
func (p *Page) WaitVisible(selector string, timeout time.Duration) error {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

// Text returns the text of the element matched by selector
func (p *Page) Text(selector string, timeout time.Duration) (string, error) {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// URL returns the current page URL, or "" when unknown
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// WaitResponse subscribes to network responses immediately; wait blocks
// until a response URL contains pattern or timeout elapses.
func (p *Page) WaitResponse(pattern string, timeout time.Duration) (func() error, func()) {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	matched := false
	wait := p.page.Context(ctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Response != nil && strings.Contains(e.Response.URL, pattern) {
			matched = true
			return true
		}
		return false
	})
	return func() error {
		wait()
		if !matched {
			return fmt.Errorf("%w for %q: %v", ErrNoMatchingResponse, pattern, ctx.Err())
		}
		return nil
	}, cancel
}

// Screenshot writes a full page PNG to path
func (p *Page) Screenshot(path string) error {
	data, err := p.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Close closes the tab
func (p *Page) Close() error {
	return p.page.Close()
}
