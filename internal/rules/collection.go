// Package rules orchestrates rule CRUD against the backend and owns the
// in-memory rule list shown by the console.
package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
)

// Banner messages shown when an operation fails.
const (
	MsgLoadFailed   = "Failed to load rules"
	MsgSaveFailed   = "Failed to save rule"
	MsgDeleteFailed = "Failed to delete rule"
)

// ErrNotConfirmed is returned by ConfirmDelete when the id was not first
// passed to RequestDelete.
var ErrNotConfirmed = errors.New("delete not confirmed")

// ErrRefetchFailed wraps the list error when a write succeeded but the
// refetch that follows it did not. The write must not be retried.
var ErrRefetchFailed = errors.New("write succeeded, refetch failed")

// Gateway is the subset of the backend client the collection needs.
type Gateway interface {
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	CreateRule(ctx context.Context, req domain.RuleRequest) (*domain.Rule, error)
	UpdateRule(ctx context.Context, id string, req domain.RuleRequest) (*domain.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

var _ Gateway = (*gateway.Client)(nil)

// Collection is the sole owner of the console's rule list. After any write
// it refetches before trusting local state.
type Collection struct {
	gw Gateway

	mu            sync.RWMutex
	rules         []*domain.Rule
	loaded        bool
	filter        domain.ActivationFilter
	pendingDelete string
	banner        string
}

// New creates an empty collection backed by gw.
func New(gw Gateway) *Collection {
	return &Collection{gw: gw, filter: domain.FilterAll}
}

// FetchAll replaces the list with the backend's. On failure the previous
// list stays visible and the load banner is set.
func (c *Collection) FetchAll(ctx context.Context) error {
	rules, err := c.gw.ListRules(ctx)
	if err != nil {
		c.fail(err, MsgLoadFailed)
		return err
	}

	c.mu.Lock()
	c.rules = rules
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Save creates rule when it has no id and updates it otherwise, then
// refetches the list. When only the refetch fails, the saved rule is
// returned together with an error wrapping ErrRefetchFailed.
func (c *Collection) Save(ctx context.Context, rule *domain.Rule) (*domain.Rule, error) {
	var (
		saved *domain.Rule
		err   error
	)
	if rule.ID == "" {
		saved, err = c.gw.CreateRule(ctx, rule.Request())
	} else {
		saved, err = c.gw.UpdateRule(ctx, rule.ID, rule.Request())
	}
	if err != nil {
		c.fail(err, MsgSaveFailed)
		return nil, err
	}
	if err := c.FetchAll(ctx); err != nil {
		return saved, fmt.Errorf("%w: %w", ErrRefetchFailed, err)
	}
	return saved, nil
}

// Create posts a new rule and refetches.
func (c *Collection) Create(ctx context.Context, req domain.RuleRequest) (*domain.Rule, error) {
	return c.Save(ctx, &domain.Rule{
		RuleName:     req.RuleName,
		Keywords:     req.Keywords,
		CommentReply: req.CommentReply,
		Toggle:       req.Toggle,
		IsActive:     req.IsActive,
	})
}

// Update replaces the rule with the given id and refetches.
func (c *Collection) Update(ctx context.Context, id string, req domain.RuleRequest) (*domain.Rule, error) {
	if id == "" {
		return nil, domain.ErrInvalidInput
	}
	return c.Save(ctx, &domain.Rule{
		ID:           id,
		RuleName:     req.RuleName,
		Keywords:     req.Keywords,
		CommentReply: req.CommentReply,
		Toggle:       req.Toggle,
		IsActive:     req.IsActive,
	})
}

// RequestDelete marks id as awaiting confirmation. Nothing is sent.
func (c *Collection) RequestDelete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelete = id
}

// CancelDelete drops any pending confirmation.
func (c *Collection) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelete = ""
}

// PendingDelete returns the id awaiting confirmation, or "".
func (c *Collection) PendingDelete() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pendingDelete
}

// ConfirmDelete deletes id if it is the pending confirmation, then
// refetches. The pending confirmation is consumed either way. A failed
// refetch after a successful delete wraps ErrRefetchFailed.
func (c *Collection) ConfirmDelete(ctx context.Context, id string) error {
	c.mu.Lock()
	pending := c.pendingDelete
	c.pendingDelete = ""
	c.mu.Unlock()

	if id == "" || pending != id {
		return ErrNotConfirmed
	}
	if err := c.gw.DeleteRule(ctx, id); err != nil {
		c.fail(err, MsgDeleteFailed)
		return err
	}
	if err := c.FetchAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRefetchFailed, err)
	}
	return nil
}

// SetFilter changes the activation filter. The list itself is untouched.
func (c *Collection) SetFilter(f domain.ActivationFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

// Filter returns the active activation filter.
func (c *Collection) Filter() domain.ActivationFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// Rules returns a copy of the full list.
func (c *Collection) Rules() []*domain.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rules)
}

// Visible returns the list projected through the active filter.
func (c *Collection) Visible() []*domain.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Filter(c.rules, c.filter)
}

// Find returns the rule with the given id from the current list.
func (c *Collection) Find(id string) (*domain.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Loaded reports whether at least one fetch has succeeded.
func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Counts returns the number of rules passing each filter.
func (c *Collection) Counts() map[domain.ActivationFilter]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := map[domain.ActivationFilter]int{domain.FilterAll: len(c.rules)}
	for _, r := range c.rules {
		if r.IsActive {
			counts[domain.FilterActive]++
		} else {
			counts[domain.FilterInactive]++
		}
	}
	return counts
}

// Banner returns the current error banner, or "".
func (c *Collection) Banner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banner
}

// DismissBanner clears the error banner.
func (c *Collection) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = ""
}

// fail records a banner unless err is an authorization failure, which is
// handled globally by the session.
func (c *Collection) fail(err error, msg string) {
	if gateway.IsUnauthorized(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = msg
}

// Filter returns the rules passing f, in list order. The input is not modified.
func Filter(rules []*domain.Rule, f domain.ActivationFilter) []*domain.Rule {
	out := make([]*domain.Rule, 0, len(rules))
	for _, r := range rules {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
