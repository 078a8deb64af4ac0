// Package calendar decides whether a user is on leave by consulting the
// user's iCalendar feed, cached per user.
package calendar

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/metrics"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
)

// ProfileLookup loads a user's automation profile
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error)
}

// Options configures the engine
type Options struct {
	TTL             time.Duration
	CacheSize       int
	Keywords        []string
	DefaultTimezone string
	Clock           func() time.Time
}

// cacheEntry is immutable once stored
type cacheEntry struct {
	url       string
	zone      string
	events    []domain.CalendarEvent
	expiresAt time.Time
}

// Engine answers leave queries for users
type Engine struct {
	profiles ProfileLookup
	fetcher  Fetcher
	matcher  *Matcher
	cache    *lru.Cache[string, *cacheEntry]
	ttl      time.Duration
	keywords []string
	zone     string
	now      func() time.Time
	log      *logger.Logger
}

// NewEngine creates a new leave calendar engine
func NewEngine(profiles ProfileLookup, fetcher Fetcher, opts Options, log *logger.Logger) (*Engine, error) {
	if opts.TTL <= 0 {
		opts.TTL = 4 * time.Hour
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Keywords == nil {
		opts.Keywords = config.ParseKeywords(config.DefaultLeaveKeywords)
	}

	cache, err := lru.New[string, *cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar cache: %w", err)
	}

	return &Engine{
		profiles: profiles,
		fetcher:  fetcher,
		matcher:  NewMatcher(log),
		cache:    cache,
		ttl:      opts.TTL,
		keywords: opts.Keywords,
		zone:     opts.DefaultTimezone,
		now:      opts.Clock,
		log:      log.With("component", "calendar"),
	}, nil
}

// IsUserOnLeave reports whether target's day, in the user's zone, is covered
// by a leave event. Any failure resolves to false.
func (e *Engine) IsUserOnLeave(ctx context.Context, userID string, target time.Time) (onLeave bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Leave check panicked", "user_id", userID, "panic", r)
			onLeave = false
		}
	}()

	profile, err := e.profiles.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		e.log.Warn("Leave check skipped, profile unavailable", "user_id", userID, "error", err)
		return false
	}
	if !profile.ChecksLeave() {
		return false
	}

	loc, ok := profile.Location(e.zone)
	if !ok {
		e.log.Warn("Invalid timezone, using UTC for leave check", "user_id", userID, "timezone", profile.Timezone)
	}

	events, err := e.events(ctx, userID, profile.LeaveCalendarURL, loc)
	if err != nil {
		e.log.Error("Failed to load leave calendar", "user_id", userID, "error", err)
		return false
	}

	keywords := e.keywords
	if len(profile.LeaveKeywords) > 0 {
		keywords = profile.LeaveKeywords
	}

	match, found := e.matcher.OnLeave(events, target, loc, keywords)
	if found {
		e.log.Info("User is on leave",
			"user_id", userID,
			"date", target.In(loc).Format("2006-01-02"),
			"summary", match.Event.Summary,
			"occurrence", match.Occurrence,
		)
	}
	return found
}

// Invalidate drops the cached feed for a user
func (e *Engine) Invalidate(userID string) {
	e.cache.Remove(userID)
}

func (e *Engine) events(ctx context.Context, userID, url string, loc *time.Location) ([]domain.CalendarEvent, error) {
	now := e.now()
	if entry, ok := e.cache.Get(userID); ok {
		if now.Before(entry.expiresAt) && entry.url == url && entry.zone == loc.String() {
			metrics.CalendarFetches.WithLabelValues("hit").Inc()
			return entry.events, nil
		}
	}

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.CalendarFetches.WithLabelValues("fetch_error").Inc()
		return nil, err
	}

	events, err := Parse(data, loc)
	if err != nil {
		metrics.CalendarFetches.WithLabelValues("parse_error").Inc()
		return nil, err
	}

	e.cache.Add(userID, &cacheEntry{
		url:       url,
		zone:      loc.String(),
		events:    events,
		expiresAt: now.Add(e.ttl),
	})
	metrics.CalendarFetches.WithLabelValues("fetched").Inc()
	e.log.Debug("Leave calendar refreshed", "user_id", userID, "events", len(events))
	return events, nil
}
