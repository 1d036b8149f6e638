package chat

import "sync"

// Registry maps a user to their single live connection. Last connection
// wins: a reconnect overwrites the previous entry without closing the old
// socket (it keeps draining until its own pumps die).
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]string // userID -> connID
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int]string)}
}

func (r *Registry) Register(userID int, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = connID
}

// Unregister removes the mapping only if connID is still the live one.
// A disconnect arriving after the user already reconnected is a no-op,
// so a stale socket can never evict its replacement.
func (r *Registry) Unregister(userID int, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
	}
}

func (r *Registry) Lookup(userID int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// Snapshot returns the online user set for presence broadcasts.
func (r *Registry) Snapshot() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	return out
}
