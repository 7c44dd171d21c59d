// Package auth stores the console's bearer token in an encrypted cookie.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookieName is the name of the console session cookie.
	SessionCookieName = "ar_session"
)

// ErrNoSession is returned by Get when the request carries no usable session.
var ErrNoSession = errors.New("no session")

// SessionManager handles encrypted session cookies.
type SessionManager struct {
	aead     cipher.AEAD
	duration time.Duration
	secure   bool // Use Secure flag on cookies (for HTTPS)
	now      func() time.Time
}

// Session is the data stored in the encrypted cookie. ID keys the
// server-side workspace; Token is the backend bearer token.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionManager creates a session manager. key must be 32 bytes for
// AES-256; a nil key is replaced by a random one, so cookies do not survive
// a restart.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SessionManager{
		aead:     aead,
		duration: duration,
		secure:   secure,
		now:      time.Now,
	}, nil
}

// Duration returns how long a session lives.
func (sm *SessionManager) Duration() time.Duration {
	return sm.duration
}

// Create starts a session for token, writes the cookie and returns it.
func (sm *SessionManager) Create(w http.ResponseWriter, token string) (*Session, error) {
	now := sm.now()
	session := &Session{
		ID:        uuid.New().String(),
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.duration),
	}

	// Serialize session to JSON
	plaintext, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	// Encrypt with AES-256-GCM
	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := sm.aead.Seal(nonce, nonce, plaintext, nil)
	encoded := base64.RawURLEncoding.EncodeToString(ciphertext)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(sm.duration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})

	return session, nil
}

// Get retrieves and validates the session from the cookie.
func (sm *SessionManager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, ErrNoSession
	}

	// Decode from base64
	ciphertext, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode session: %v", ErrNoSession, err)
	}

	// Decrypt
	if len(ciphertext) < sm.aead.NonceSize() {
		return nil, fmt.Errorf("%w: invalid session data", ErrNoSession)
	}

	nonce := ciphertext[:sm.aead.NonceSize()]
	ciphertext = ciphertext[sm.aead.NonceSize():]

	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt session: %v", ErrNoSession, err)
	}

	// Deserialize
	var session Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal session: %v", ErrNoSession, err)
	}

	// Check expiration
	if sm.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: session expired", ErrNoSession)
	}
	if session.ID == "" || session.Token == "" {
		return nil, fmt.Errorf("%w: incomplete session", ErrNoSession)
	}

	return &session, nil
}

// Clear clears the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})
}
