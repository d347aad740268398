// Package tokenstore provides the persisted-token slot backing a session:
// in-memory for tests and short-lived processes, an encrypted file for
// desktop-style deployments, and a Bun-backed store for processes that
// already carry a database.
package tokenstore

import (
	"sync"

	authsphere "github.com/authsphere/go-authsphere"
)

// Memory is an in-process token slot.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

var _ authsphere.TokenStore = (*Memory)(nil)
