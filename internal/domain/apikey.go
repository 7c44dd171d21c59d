package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Operator keys are the bearer tokens the console sends to the backend.
// Issued keys look like "ar_" followed by 64 hex characters.
const (
	KeyPrefix = "ar_"
	// keyHintLength is how many characters after KeyPrefix are kept so an
	// operator can tell keys apart in listings.
	keyHintLength = 8
)

// APIKey is a stored operator key. Only its hash is kept; the token
// itself is shown once, when the key is issued.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"-" db:"key_hash"`
	Hint       string     `json:"key_hint" db:"key_prefix"` // KeyPrefix plus the first hex characters
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Masked returns the hint followed by an ellipsis, for display.
func (k *APIKey) Masked() string {
	return k.Hint + "…"
}

// HashKey returns the stored form of a bearer token. Tokens are random and
// long, so a plain SHA-256 is sufficient.
func HashKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueAPIKey creates a key named name and returns it with the plaintext
// token. The name must not be blank.
func IssueAPIKey(id, name string, now time.Time) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("key name is required: %w", ErrInvalidInput)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating key: %w", err)
	}
	token := KeyPrefix + hex.EncodeToString(raw)

	return &APIKey{
		ID:        id,
		Name:      name,
		KeyHash:   HashKey(token),
		Hint:      token[:len(KeyPrefix)+keyHintLength],
		CreatedAt: now.UTC(),
	}, token, nil
}

// IssueAPIKeyRequest is the body of POST /api/keys.
type IssueAPIKeyRequest struct {
	Name string `json:"name"`
}

// IssuedAPIKey is the response to POST /api/keys. Token is never returned
// again.
type IssuedAPIKey struct {
	*APIKey
	Token string `json:"key"`
}

// APIKeyList is the response body of GET /api/keys.
type APIKeyList struct {
	Keys []*APIKey `json:"keys"`
}
