package tokenstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrIncompletePair indicates SetTokens was called without both tokens.
var ErrIncompletePair = errors.New("token pair requires access and refresh tokens")

// Store persists the access/refresh token pair of one client profile.
// Tokens are opaque strings; no implementation inspects their contents.
type Store interface {
	// SetTokens writes both tokens atomically.
	SetTokens(ctx context.Context, access, refresh string) error
	// AccessToken returns the stored access token and whether one exists.
	AccessToken(ctx context.Context) (string, bool, error)
	// RefreshToken returns the stored refresh token and whether one exists.
	RefreshToken(ctx context.Context) (string, bool, error)
	// Clear removes both tokens.
	Clear(ctx context.Context) error
}

// Memory keeps the token pair in process memory.
type Memory struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemory constructs an empty in-memory token store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetTokens(_ context.Context, access, refresh string) error {
	if err := checkPair(access, refresh); err != nil {
		return err
	}
	m.mu.Lock()
	m.access = access
	m.refresh = refresh
	m.mu.Unlock()
	return nil
}

func (m *Memory) AccessToken(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, m.access != "", nil
}

func (m *Memory) RefreshToken(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh, m.refresh != "", nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()
	return nil
}

func checkPair(access, refresh string) error {
	if strings.TrimSpace(access) == "" || strings.TrimSpace(refresh) == "" {
		return ErrIncompletePair
	}
	return nil
}
