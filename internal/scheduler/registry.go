package scheduler

import (
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
)

// registration is the set of live triggers owned by one user
type registration struct {
	userID       string
	timezone     string
	checkInAt    domain.ClockTime
	checkOutAt   domain.ClockTime
	checkInSpec  string
	checkOutSpec string
	checkIn      cron.EntryID
	checkOut     cron.EntryID
}

// Registry maps users to their live triggers. Mutations for one user are
// serialized through a per-user lock so a reschedule removes the old
// triggers before the new ones are installed.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registration
	locks   map[string]*sync.Mutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockUser acquires the per-user lock and returns its release function
func (r *Registry) lockUser(userID string) func() {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (r *Registry) put(reg registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.userID] = reg
}

func (r *Registry) take(userID string) (registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[userID]
	if ok {
		delete(r.entries, userID)
	}
	return reg, ok
}

func (r *Registry) get(userID string) (registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[userID]
	return reg, ok
}

// Len returns the number of users with live triggers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// snapshot returns all registrations ordered by user
func (r *Registry) snapshot() []registration {
	r.mu.Lock()
	out := make([]registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}
