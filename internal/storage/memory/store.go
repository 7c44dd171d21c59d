package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	apiKeys     map[string]*domain.APIKey
	rules       map[string]*domain.Rule // key: id
	ruleOrder   []string
	commentLogs []*domain.CommentLog
	dmLogs      []*domain.DMLog
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys: make(map[string]*domain.APIKey),
		rules:   make(map[string]*domain.Rule),
	}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{Store: s}, nil
}

// Tx is a no-op transaction for in-memory store. Writes apply immediately.
type Tx struct {
	*Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.apiKeys[key.ID] = key
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			return key, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Rules
// ============================================

func cloneRule(r *domain.Rule) *domain.Rule {
	cp := *r
	cp.Keywords = slices.Clone(r.Keywords)
	if cp.Keywords == nil {
		cp.Keywords = []string{}
	}
	return &cp
}

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.rules[rule.ID] = cloneRule(rule)
	s.ruleOrder = append(s.ruleOrder, rule.ID)
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, exists := s.rules[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return cloneRule(rule), nil
}

func (s *Store) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]*domain.Rule, 0, len(s.ruleOrder))
	for _, id := range s.ruleOrder {
		rules = append(rules, cloneRule(s.rules[id]))
	}
	return rules, nil
}

func (s *Store) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		return domain.ErrNotFound
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.rules, id)
	s.ruleOrder = slices.DeleteFunc(s.ruleOrder, func(r string) bool { return r == id })
	return nil
}

func (s *Store) CountActiveRules(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rules {
		if r.IsActive {
			n++
		}
	}
	return n, nil
}

// ============================================
// Logs
// ============================================

func pageBounds(n int, page domain.Page) (int, int) {
	page = page.Normalize()
	start := min(page.Skip, n)
	end := min(start+page.Limit, n)
	return start, end
}

func inRange(t time.Time, f domain.LogFilter) bool {
	if !f.Since.IsZero() && t.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.Before(f.Until) {
		return false
	}
	return true
}

func (s *Store) CreateCommentLog(ctx context.Context, entry *domain.CommentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.commentLogs = append(s.commentLogs, &cp)
	return nil
}

func (s *Store) ListCommentLogs(ctx context.Context, page domain.Page) ([]*domain.CommentLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := slices.Clone(s.commentLogs)
	slices.SortStableFunc(sorted, func(a, b *domain.CommentLog) int { return b.Timestamp.Compare(a.Timestamp) })
	start, end := pageBounds(len(sorted), page)
	return sorted[start:end], len(sorted), nil
}

func (s *Store) matchingComments(f domain.LogFilter) []*domain.CommentLog {
	var out []*domain.CommentLog
	for _, l := range s.commentLogs {
		if !inRange(l.Timestamp, f) {
			continue
		}
		if f.ReplySent != nil && l.ReplySent != *f.ReplySent {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (s *Store) CountCommentLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchingComments(filter)), nil
}

func (s *Store) AverageResponseMS(ctx context.Context, filter domain.LogFilter) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.matchingComments(filter)
	if len(logs) == 0 {
		return 0, nil
	}
	var sum int64
	for _, l := range logs {
		sum += l.ResponseMS
	}
	return float64(sum) / float64(len(logs)), nil
}

func (s *Store) CreateDMLog(ctx context.Context, entry *domain.DMLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.dmLogs = append(s.dmLogs, &cp)
	return nil
}

func (s *Store) ListDMLogs(ctx context.Context, page domain.Page) ([]*domain.DMLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := slices.Clone(s.dmLogs)
	slices.SortStableFunc(sorted, func(a, b *domain.DMLog) int { return b.SentAt.Compare(a.SentAt) })
	start, end := pageBounds(len(sorted), page)
	return sorted[start:end], len(sorted), nil
}

func (s *Store) CountDMLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.dmLogs {
		if !inRange(l.SentAt, filter) {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		n++
	}
	return n, nil
}
