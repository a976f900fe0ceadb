package core

import (
	"slices"
	"sync"
)

// Presence maps each online user to the single connection currently bound to it.
// Binding is last-writer-wins: a second login moves the user to the newest connection.
// The table lives only in memory and starts empty.
type Presence struct {
	mu     sync.RWMutex
	byUser map[int64]string
	// byConn is the reverse index; u is in byConn[c] iff byUser[u] == c.
	byConn map[string]map[int64]struct{}
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[int64]string),
		byConn: make(map[string]map[int64]struct{}),
	}
}

// Bind points userID at connID, replacing any previous binding.
func (p *Presence) Bind(userID int64, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byUser[userID]; ok && prev != connID {
		p.dropIndexLocked(prev, userID)
	}
	p.byUser[userID] = connID

	users := p.byConn[connID]
	if users == nil {
		users = make(map[int64]struct{})
		p.byConn[connID] = users
	}
	users[userID] = struct{}{}
}

// Lookup returns the connection bound to userID.
func (p *Presence) Lookup(userID int64) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	connID, ok := p.byUser[userID]
	return connID, ok
}

// Online reports whether userID has a bound connection.
func (p *Presence) Online(userID int64) bool {
	_, ok := p.Lookup(userID)
	return ok
}

// Unbind removes every binding that still points at connID and returns the
// affected user ids in ascending order. Users already rebound elsewhere keep
// their new binding.
func (p *Presence) Unbind(connID string) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.byConn[connID]
	if len(users) == 0 {
		delete(p.byConn, connID)
		return nil
	}
	delete(p.byConn, connID)

	removed := make([]int64, 0, len(users))
	for userID := range users {
		if p.byUser[userID] == connID {
			delete(p.byUser, userID)
			removed = append(removed, userID)
		}
	}
	slices.Sort(removed)
	return removed
}

// Release removes the binding for userID only if it still points at connID.
func (p *Presence) Release(userID int64, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byUser[userID] != connID {
		return false
	}
	delete(p.byUser, userID)
	p.dropIndexLocked(connID, userID)
	return true
}

// Len returns the number of bound users.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// Reset clears all bindings.
func (p *Presence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byUser = make(map[int64]string)
	p.byConn = make(map[string]map[int64]struct{})
}

func (p *Presence) dropIndexLocked(connID string, userID int64) {
	users := p.byConn[connID]
	delete(users, userID)
	if len(users) == 0 {
		delete(p.byConn, connID)
	}
}
