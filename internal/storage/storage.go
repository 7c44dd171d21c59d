package storage

import (
	"context"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Rules are listed in creation order.
	CreateRule(ctx context.Context, rule *domain.Rule) error
	GetRule(ctx context.Context, id string) (*domain.Rule, error)
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	UpdateRule(ctx context.Context, rule *domain.Rule) error
	DeleteRule(ctx context.Context, id string) error
	CountActiveRules(ctx context.Context) (int, error)

	// Comment logs are listed newest first.
	CreateCommentLog(ctx context.Context, entry *domain.CommentLog) error
	ListCommentLogs(ctx context.Context, page domain.Page) ([]*domain.CommentLog, int, error)
	CountCommentLogs(ctx context.Context, filter domain.LogFilter) (int, error)
	AverageResponseMS(ctx context.Context, filter domain.LogFilter) (float64, error)

	// DM logs are listed newest first.
	CreateDMLog(ctx context.Context, entry *domain.DMLog) error
	ListDMLogs(ctx context.Context, page domain.Page) ([]*domain.DMLog, int, error)
	CountDMLogs(ctx context.Context, filter domain.LogFilter) (int, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
