package session

import "sync"

// Manager keeps one Context per device.
type Manager struct {
	mu       sync.RWMutex
	tabs     Tabs
	sessions map[string]*Context
}

// NewManager returns a Manager whose contexts use tabs.
func NewManager(tabs Tabs) *Manager {
	return &Manager{tabs: tabs, sessions: make(map[string]*Context)}
}

// Tabs returns the footer tab URLs.
func (m *Manager) Tabs() Tabs {
	return m.tabs
}

// Get returns the context for device, or nil.
func (m *Manager) Get(device string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[device]
}

// Open returns the context for device, creating an empty one if needed.
func (m *Manager) Open(device string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[device]
	if !ok {
		c = New(m.tabs)
		m.sessions[device] = c
	}
	return c
}

// Restore installs a context rebuilt from persisted values. An existing
// context for device wins over the persisted one.
func (m *Manager) Restore(device, token, email, url string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[device]; ok {
		return c
	}
	c := New(m.tabs)
	c.token = token
	c.email = email
	if url != "" {
		c.url = url
	}
	m.sessions[device] = c
	return c
}

// End drops the context for device.
func (m *Manager) End(device string) {
	m.mu.Lock()
	delete(m.sessions, device)
	m.mu.Unlock()
}
