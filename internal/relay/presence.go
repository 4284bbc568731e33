package relay

import "sync"

// Presence maps a user key (email) to their active connection id. A user key
// maps to at most one connection at a time: a new join for the same email
// overwrites any prior entry without evicting the prior connection.
type Presence struct {
	mu     sync.RWMutex
	online map[string]string // email -> connID
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]string)}
}

// MarkOnline records the connection as the user's live connection and reports
// whether an existing entry was replaced.
func (p *Presence) MarkOnline(email, connID string) (replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, existed := p.online[email]
	p.online[email] = connID
	return existed && prev != connID
}

// MarkOffline removes the entry only if it still points at connID. The guard
// handles the race where connection A's disconnect is processed after the
// same user already rejoined on connection B: without it, A's delayed
// teardown would clear B's live presence.
func (p *Presence) MarkOffline(email, connID string) (removed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.online[email]; ok && current == connID {
		delete(p.online, email)
		return true
	}
	return false
}

// IsOnline reports whether the user has a live connection.
func (p *Presence) IsOnline(email string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.online[email]
	return ok
}
