// Package registry tracks live sessions and enforces the
// one-active-session-per-account rule across the process.
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/core"
)

// SessionInfo is the status snapshot of one live session.
type SessionInfo struct {
	ID    string `json:"id"`
	Nick  string `json:"nick,omitempty"`
	State string `json:"state"`
}

// Registry holds every live session and the set of claimed accounts. It
// implements core.AccountRegistry.
type Registry struct {
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*core.Session
	accounts map[string]struct{}
}

// New constructs an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		log:      logger.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*core.Session),
		accounts: make(map[string]struct{}),
	}
}

// Add registers a session under its id.
func (r *Registry) Add(s *core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	r.log.Debug().Str("session", s.ID()).Int("total", len(r.sessions)).Msg("session registered")
}

// Remove drops a session. Safe to call for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.log.Debug().Str("session", id).Int("total", len(r.sessions)).Msg("session removed")
}

// Claim marks an account active. False means another session already
// holds it.
func (r *Registry) Claim(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[userID]; ok {
		return false
	}
	r.accounts[userID] = struct{}{}
	return true
}

// Release frees an account claim. Safe to call for unclaimed accounts.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, userID)
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns status info for every live session, ordered by id.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			ID:    s.ID(),
			Nick:  s.Nick(),
			State: s.State().String(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// CloseAll tears down every live session, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*core.Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
