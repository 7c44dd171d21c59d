package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ storage.Storage = (*Store)(nil)

// New creates a new SQL store and applies pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// A single connection keeps :memory: databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// API Keys
// ============================================

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.Hint, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return &key, err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	err := db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

// ============================================
// Rules
// ============================================

// ruleRow is the flattened rules table row.
type ruleRow struct {
	ID           string    `db:"id"`
	RuleName     string    `db:"rule_name"`
	CommentReply string    `db:"comment_reply"`
	CommentOnly  bool      `db:"comment_only"`
	SendDM       bool      `db:"send_dm"`
	DMMessage    string    `db:"dm_message"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r ruleRow) toDomain(keywords []string) *domain.Rule {
	if keywords == nil {
		keywords = []string{}
	}
	return &domain.Rule{
		ID:           r.ID,
		RuleName:     r.RuleName,
		Keywords:     keywords,
		CommentReply: r.CommentReply,
		Toggle: domain.Toggle{
			CommentOnly: r.CommentOnly,
			SendDM:      r.SendDM,
			DMMessage:   r.DMMessage,
		},
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const ruleColumns = `id, rule_name, comment_reply, comment_only, send_dm, dm_message, is_active, created_at, updated_at`

func createRule(ctx context.Context, db dbInterface, rule *domain.Rule) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID, rule.RuleName, rule.CommentReply,
		rule.Toggle.CommentOnly, rule.Toggle.SendDM, rule.Toggle.DMMessage,
		rule.IsActive, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return wrapUniqueError(err)
	}
	return insertRuleKeywords(ctx, db, rule.ID, rule.Keywords)
}

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	return createRule(ctx, s.db, rule)
}

func (t *Tx) CreateRule(ctx context.Context, rule *domain.Rule) error {
	return createRule(ctx, t.tx, rule)
}

func insertRuleKeywords(ctx context.Context, db dbInterface, ruleID string, keywords []string) error {
	for i, kw := range keywords {
		_, err := db.ExecContext(ctx,
			`INSERT INTO rule_keywords (rule_id, keyword, ordinal) VALUES ($1, $2, $3)`, ruleID, kw, i)
		if err != nil {
			return wrapUniqueError(err)
		}
	}
	return nil
}

func getRuleKeywords(ctx context.Context, db dbInterface, ruleID string) ([]string, error) {
	keywords := []string{}
	err := db.SelectContext(ctx, &keywords,
		`SELECT keyword FROM rule_keywords WHERE rule_id = $1 ORDER BY ordinal`, ruleID)
	return keywords, err
}

func getRule(ctx context.Context, db dbInterface, id string) (*domain.Rule, error) {
	var row ruleRow
	err := db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	keywords, err := getRuleKeywords(ctx, db, row.ID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(keywords), nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	return getRule(ctx, s.db, id)
}

func (t *Tx) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	return getRule(ctx, t.tx, id)
}

func listRules(ctx context.Context, db dbInterface) ([]*domain.Rule, error) {
	var rows []ruleRow
	if err := db.SelectContext(ctx, &rows, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at, id`); err != nil {
		return nil, err
	}

	var kwRows []struct {
		RuleID  string `db:"rule_id"`
		Keyword string `db:"keyword"`
	}
	if err := db.SelectContext(ctx, &kwRows,
		`SELECT rule_id, keyword FROM rule_keywords ORDER BY rule_id, ordinal`); err != nil {
		return nil, err
	}
	keywords := make(map[string][]string, len(rows))
	for _, kw := range kwRows {
		keywords[kw.RuleID] = append(keywords[kw.RuleID], kw.Keyword)
	}

	rules := make([]*domain.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toDomain(keywords[row.ID]))
	}
	return rules, nil
}

func (s *Store) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	return listRules(ctx, s.db)
}

func (t *Tx) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	return listRules(ctx, t.tx)
}

func updateRule(ctx context.Context, db dbInterface, rule *domain.Rule) error {
	result, err := db.ExecContext(ctx,
		`UPDATE rules SET rule_name = $1, comment_reply = $2, comment_only = $3, send_dm = $4,
		 dm_message = $5, is_active = $6, updated_at = $7 WHERE id = $8`,
		rule.RuleName, rule.CommentReply, rule.Toggle.CommentOnly, rule.Toggle.SendDM,
		rule.Toggle.DMMessage, rule.IsActive, rule.UpdatedAt, rule.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}

	// Replace keywords
	if _, err := db.ExecContext(ctx, `DELETE FROM rule_keywords WHERE rule_id = $1`, rule.ID); err != nil {
		return err
	}
	return insertRuleKeywords(ctx, db, rule.ID, rule.Keywords)
}

func (s *Store) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	return updateRule(ctx, s.db, rule)
}

func (t *Tx) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	return updateRule(ctx, t.tx, rule)
}

func deleteRule(ctx context.Context, db dbInterface, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM rule_keywords WHERE rule_id = $1`, id); err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return deleteRule(ctx, s.db, id)
}

func (t *Tx) DeleteRule(ctx context.Context, id string) error {
	return deleteRule(ctx, t.tx, id)
}

func countActiveRules(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM rules WHERE is_active = $1`, true)
	return count, err
}

func (s *Store) CountActiveRules(ctx context.Context) (int, error) {
	return countActiveRules(ctx, s.db)
}

func (t *Tx) CountActiveRules(ctx context.Context) (int, error) {
	return countActiveRules(ctx, t.tx)
}

// ============================================
// Logs
// ============================================

// whereClause builds a WHERE clause over timeColumn from filter.
func whereClause(filter domain.LogFilter, timeColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.Since.IsZero() {
		add(timeColumn+" >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add(timeColumn+" < $%d", filter.Until)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ReplySent != nil {
		add("reply_sent = $%d", *filter.ReplySent)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const commentLogColumns = `id, comment_id, post_id, commenter_id, commenter_username, comment_text, rule_id, reply_sent, response_ms, commented_at`

func createCommentLog(ctx context.Context, db dbInterface, entry *domain.CommentLog) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO comment_logs (`+commentLogColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.CommentID, entry.PostID, entry.CommenterID, entry.CommenterUsername,
		entry.CommentText, entry.RuleID, entry.ReplySent, entry.ResponseMS, entry.Timestamp)
	return wrapUniqueError(err)
}

func (s *Store) CreateCommentLog(ctx context.Context, entry *domain.CommentLog) error {
	return createCommentLog(ctx, s.db, entry)
}

func (t *Tx) CreateCommentLog(ctx context.Context, entry *domain.CommentLog) error {
	return createCommentLog(ctx, t.tx, entry)
}

func listCommentLogs(ctx context.Context, db dbInterface, page domain.Page) ([]*domain.CommentLog, int, error) {
	page = page.Normalize()
	logs := []*domain.CommentLog{}
	err := db.SelectContext(ctx, &logs,
		`SELECT `+commentLogColumns+` FROM comment_logs ORDER BY commented_at DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Skip)
	if err != nil {
		return nil, 0, err
	}
	total, err := countCommentLogs(ctx, db, domain.LogFilter{})
	return logs, total, err
}

func (s *Store) ListCommentLogs(ctx context.Context, page domain.Page) ([]*domain.CommentLog, int, error) {
	return listCommentLogs(ctx, s.db, page)
}

func (t *Tx) ListCommentLogs(ctx context.Context, page domain.Page) ([]*domain.CommentLog, int, error) {
	return listCommentLogs(ctx, t.tx, page)
}

func countCommentLogs(ctx context.Context, db dbInterface, filter domain.LogFilter) (int, error) {
	where, args := whereClause(filter, "commented_at")
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM comment_logs`+where, args...)
	return count, err
}

func (s *Store) CountCommentLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	return countCommentLogs(ctx, s.db, filter)
}

func (t *Tx) CountCommentLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	return countCommentLogs(ctx, t.tx, filter)
}

func averageResponseMS(ctx context.Context, db dbInterface, filter domain.LogFilter) (float64, error) {
	where, args := whereClause(filter, "commented_at")
	var avg sql.NullFloat64
	err := db.GetContext(ctx, &avg, `SELECT AVG(response_ms) FROM comment_logs`+where, args...)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (s *Store) AverageResponseMS(ctx context.Context, filter domain.LogFilter) (float64, error) {
	return averageResponseMS(ctx, s.db, filter)
}

func (t *Tx) AverageResponseMS(ctx context.Context, filter domain.LogFilter) (float64, error) {
	return averageResponseMS(ctx, t.tx, filter)
}

const dmLogColumns = `id, recipient_id, recipient_username, message, rule_id, status, sent_at`

func createDMLog(ctx context.Context, db dbInterface, entry *domain.DMLog) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO dm_logs (`+dmLogColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.RecipientID, entry.RecipientUsername, entry.Message, entry.RuleID, entry.Status, entry.SentAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateDMLog(ctx context.Context, entry *domain.DMLog) error {
	return createDMLog(ctx, s.db, entry)
}

func (t *Tx) CreateDMLog(ctx context.Context, entry *domain.DMLog) error {
	return createDMLog(ctx, t.tx, entry)
}

func listDMLogs(ctx context.Context, db dbInterface, page domain.Page) ([]*domain.DMLog, int, error) {
	page = page.Normalize()
	logs := []*domain.DMLog{}
	err := db.SelectContext(ctx, &logs,
		`SELECT `+dmLogColumns+` FROM dm_logs ORDER BY sent_at DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Skip)
	if err != nil {
		return nil, 0, err
	}
	total, err := countDMLogs(ctx, db, domain.LogFilter{})
	return logs, total, err
}

func (s *Store) ListDMLogs(ctx context.Context, page domain.Page) ([]*domain.DMLog, int, error) {
	return listDMLogs(ctx, s.db, page)
}

func (t *Tx) ListDMLogs(ctx context.Context, page domain.Page) ([]*domain.DMLog, int, error) {
	return listDMLogs(ctx, t.tx, page)
}

func countDMLogs(ctx context.Context, db dbInterface, filter domain.LogFilter) (int, error) {
	where, args := whereClause(filter, "sent_at")
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dm_logs`+where, args...)
	return count, err
}

func (s *Store) CountDMLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	return countDMLogs(ctx, s.db, filter)
}

func (t *Tx) CountDMLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	return countDMLogs(ctx, t.tx, filter)
}

var _ storage.Transaction = (*Tx)(nil)
