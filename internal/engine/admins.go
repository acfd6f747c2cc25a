package engine

import "sync"

// AdminList is the runtime-replaceable allow-list of admin phone numbers.
// Every admin flow step consults it, not just the flow entry, so a revoked
// admin is rejected mid-flow immediately.
type AdminList struct {
	mu     sync.RWMutex
	phones map[string]struct{}
}

// NewAdminList builds an allow-list from phone numbers (without leading symbols).
func NewAdminList(phones []string) *AdminList {
	a := &AdminList{}
	a.Replace(phones)
	return a
}

// IsAdmin reports whether the given customer identity is an admin.
func (a *AdminList) IsAdmin(waID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.phones[waID]
	return ok
}

// Replace swaps the entire allow-list at runtime.
func (a *AdminList) Replace(phones []string) {
	next := make(map[string]struct{}, len(phones))
	for _, p := range phones {
		if p != "" {
			next[p] = struct{}{}
		}
	}
	a.mu.Lock()
	a.phones = next
	a.mu.Unlock()
}

// List returns the current admin phones.
func (a *AdminList) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.phones))
	for p := range a.phones {
		out = append(out, p)
	}
	return out
}
