package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore persists the bearer token between processes.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Remove() error
}

// Session is the process-wide authentication context shared by every
// request a Client makes. It is injected into the client rather than read
// from ambient state.
type Session struct {
	mu      sync.RWMutex
	token   string
	store   TokenStore
	onClear []func()
}

// NewSession returns an in-memory session holding token.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// LoadSession restores a session from store. A missing token is not an error.
func LoadSession(store TokenStore) (*Session, error) {
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &Session{token: token, store: store}, nil
}

// Token returns the current bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is attached.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Attach sets the bearer token and persists it when a store is configured.
func (s *Session) Attach(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token must not be empty")
	}
	s.mu.Lock()
	s.token = token
	store := s.store
	s.mu.Unlock()

	if store != nil {
		if err := store.Save(token); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	return nil
}

// Clear drops the token, removes the persisted copy and notifies OnClear
// listeners.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token = ""
	store := s.store
	listeners := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	if store != nil {
		if err := store.Remove(); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
	}
	return nil
}

// OnClear registers fn to run whenever the session is cleared.
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// FileStore keeps the token in a single file readable only by the owner.
type FileStore struct {
	Path string
}

// Load returns the stored token, or "" when the file does not exist.
func (f FileStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token, creating parent directories as needed.
func (f FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(token+"\n"), 0o600)
}

// Remove deletes the token file. A missing file is not an error.
func (f FileStore) Remove() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
