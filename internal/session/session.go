// Package session holds per-customer conversational state. Sessions are a
// pure cache: losing one only costs the customer a restart of their current
// flow, never data loss for settled orders. The durability boundary is the
// order store.
package session

import (
	"context"
	"sync"
)

// Step identifies the customer's position inside a multi-turn flow.
type Step string

const (
	// order flow
	StepName  Step = "name"
	StepPhone Step = "phone"
	StepItem1 Step = "item1"
	StepItem2 Step = "item2"

	// restore flow
	StepRestorePhone Step = "restore_phone"

	// broken-device flow
	StepBrokenDevice Step = "broken_device"
	StepBrokenIssue  Step = "broken_issue"

	// admin custom-amount payment flow
	StepAdminPayName   Step = "admin_pay_name"
	StepAdminPayPhone  Step = "admin_pay_phone"
	StepAdminPayAmount Step = "admin_pay_amount"

	// admin manual-invoice flow
	StepAdminInvName   Step = "admin_inv_name"
	StepAdminInvPhone  Step = "admin_inv_phone"
	StepAdminInvReason Step = "admin_inv_reason"
	StepAdminInvAmount Step = "admin_inv_amount"
)

// Session accumulates fields collected across turns of a single flow.
type Session struct {
	Step   Step   `json:"step"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Item1  string `json:"item1,omitempty"`
	Device string `json:"device,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Store is the per-customer session store. Plain key-value semantics,
// last-write-wins per key. Get returns (nil, nil) when no session exists.
type Store interface {
	Get(ctx context.Context, waID string) (*Session, error)
	Set(ctx context.Context, waID string, s *Session) error
	Clear(ctx context.Context, waID string) error
}

// MemoryStore is the in-process Store backend. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the stored session, or nil when none exists.
func (m *MemoryStore) Get(_ context.Context, waID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[waID]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

// Set stores the session, replacing any previous one for the same customer.
func (m *MemoryStore) Set(_ context.Context, waID string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[waID] = *s
	return nil
}

// Clear removes the customer's session if present.
func (m *MemoryStore) Clear(_ context.Context, waID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, waID)
	return nil
}
