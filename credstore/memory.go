package credstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store/StateStore. It does not survive a restart;
// it exists for tests and for hosts that manage durability themselves.
type Memory struct {
	mu     sync.RWMutex
	creds  Credentials
	states map[string]RedirectState
}

var (
	_ Store      = (*Memory)(nil)
	_ StateStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]RedirectState),
	}
}

func (m *Memory) Write(ctx context.Context, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	return nil
}

func (m *Memory) Read(ctx context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	return nil
}

func (m *Memory) SaveState(ctx context.Context, provider string, st RedirectState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[provider] = st
	return nil
}

func (m *Memory) TakeState(ctx context.Context, provider string) (RedirectState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[provider]
	if !ok {
		return RedirectState{}, ErrNotFound
	}
	delete(m.states, provider)
	return st, nil
}
