package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// entry is the live slot for one session id. Handles reference the entry,
// not the State inside it, so a reset installed here is observed by every
// outstanding handle.
type entry struct {
	mu    sync.RWMutex
	state *State
}

// Store is the process-wide session registry. The registry lock covers only
// structural map mutation; each entry carries its own lock, so independent
// sessions never contend.
type Store struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	inactivityTTL time.Duration
	onExpire      func(id string)
}

// NewStore creates an empty registry. inactivityTTL <= 0 disables expiry.
func NewStore(inactivityTTL time.Duration) *Store {
	return &Store{
		entries:       make(map[string]*entry),
		inactivityTTL: inactivityTTL,
	}
}

// SetExpireHook registers a callback invoked after the janitor removes an
// inactive session.
func (s *Store) SetExpireHook(hook func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Create registers a fresh empty session and returns its id. The id matches
// the uuid4-hex shape clients already store in cookies.
func (s *Store) Create() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	e := &entry{state: NewState()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
	return id
}

// Has reports whether a session id is registered. It never creates.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Resolve returns a handle bound to an existing session's live state slot.
// Unknown ids fail with ErrNotFound; resolution never auto-creates.
func (s *Store) Resolve(id string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Handle{id: id, entry: e}, nil
}

// Delete removes a session; no-op when absent.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Count returns the number of registered sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor periodically deletes sessions idle beyond the inactivity TTL.
// It does nothing when expiry is disabled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.inactivityTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireInactive()
			}
		}
	}()
}

func (s *Store) expireInactive() {
	now := time.Now().UTC()
	var expired []string

	s.mu.Lock()
	for id, e := range s.entries {
		e.mu.RLock()
		idle := now.Sub(e.state.LastActivityAt)
		e.mu.RUnlock()
		if idle < s.inactivityTTL {
			continue
		}
		delete(s.entries, id)
		expired = append(expired, id)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}

// Handle binds a session id to its live state slot. All access to the state
// goes through Update or View, under that session's lock only.
type Handle struct {
	id    string
	entry *entry
}

func (h *Handle) ID() string { return h.id }

// Update runs fn with exclusive access to the session state. A non-nil error
// from fn is returned unchanged; the commit discipline (mutate only on
// success) is the caller's responsibility.
func (h *Handle) Update(fn func(*State) error) error {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	err := fn(h.entry.state)
	h.entry.state.LastActivityAt = time.Now().UTC()
	return err
}

// View runs fn with shared read access to the session state. fn must not
// mutate the state or retain references past the call.
func (h *Handle) View(fn func(*State)) {
	h.entry.mu.RLock()
	defer h.entry.mu.RUnlock()
	fn(h.entry.state)
}

// Reset replaces the session's state with a fresh empty one, in place, so
// every concurrently resolved handle for this id observes the reset.
func (h *Handle) Reset() {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	h.entry.state = NewState()
}
