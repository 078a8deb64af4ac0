package automation

import (
	"context"
	"time"
)

// Launcher starts an isolated browser process
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process
type Browser interface {
	NewContext() (BrowserContext, error)
	Close() error
}

// BrowserContext is an isolated browsing context (no shared cookies or storage)
type BrowserContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab. Every blocking call is bounded by the given timeout.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	Text(selector string, timeout time.Duration) (string, error)
	URL() string
	// WaitResponse starts listening for a network response whose URL contains
	// pattern. wait blocks until it arrives or timeout elapses. cancel drops
	// the subscription and must be called even when wait never is.
	WaitResponse(pattern string, timeout time.Duration) (wait func() error, cancel func())
	Screenshot(path string) error
	Close() error
}
