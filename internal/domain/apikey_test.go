package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAPIKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))

	key, token, err := IssueAPIKey("k1", "  Console  ", now)
	require.NoError(t, err)
	assert.Equal(t, "Console", key.Name)
	assert.True(t, strings.HasPrefix(token, KeyPrefix))
	assert.Len(t, token, len(KeyPrefix)+64)
	assert.Equal(t, token[:len(KeyPrefix)+8], key.Hint)
	assert.Equal(t, HashKey(token), key.KeyHash)
	assert.NotContains(t, key.KeyHash, token)
	assert.Equal(t, time.UTC, key.CreatedAt.Location())
	assert.Equal(t, key.Hint+"…", key.Masked())

	_, other, err := IssueAPIKey("k2", "Console", now)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestIssueAPIKeyBlankName(t *testing.T) {
	_, _, err := IssueAPIKey("k1", " \t", time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
