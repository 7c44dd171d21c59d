// Package gateway is the REST client for the auto-responder backend.
// Every request carries the session's bearer token; a 401 response clears
// the session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

// ErrUnauthorized is returned for any 401 response, after the session has
// been cleared.
var ErrUnauthorized = fmt.Errorf("gateway: %w", domain.ErrUnauthorized)

// StatusError carries a non-2xx response status. The body is not parsed.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// Is maps well-known statuses onto the domain sentinels.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	case http.StatusConflict:
		return target == domain.ErrAlreadyExists
	case http.StatusBadRequest:
		return target == domain.ErrInvalidInput
	}
	return false
}

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend REST surface.
type Client struct {
	baseURL string
	session *Session
	http    *http.Client
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of hc as the underlying HTTP client, so
// later options never modify a client shared with other callers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL that authenticates with session.
func New(baseURL string, session *Session, opts ...Option) *Client {
	if session == nil {
		session = NewSession("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  log.Default().WithPrefix("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("unauthorized, clearing session", "method", method, "path", path)
		if err := c.session.Clear(); err != nil {
			c.logger.Error("failed to clear session", "error", err)
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		c.logger.Error("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return serr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// ListRules fetches every rule.
func (c *Client) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	var out domain.RuleList
	if err := c.do(ctx, http.MethodGet, "/api/rules", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Rules == nil {
		out.Rules = []*domain.Rule{}
	}
	return out.Rules, nil
}

// GetRule fetches a single rule.
func (c *Client) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	var out domain.Rule
	if err := c.do(ctx, http.MethodGet, "/api/rules/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRule creates a rule and returns it with its backend-assigned id.
func (c *Client) CreateRule(ctx context.Context, req domain.RuleRequest) (*domain.Rule, error) {
	var out domain.Rule
	if err := c.do(ctx, http.MethodPost, "/api/rules", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRule replaces the rule with the given id.
func (c *Client) UpdateRule(ctx context.Context, id string, req domain.RuleRequest) (*domain.Rule, error) {
	var out domain.Rule
	if err := c.do(ctx, http.MethodPut, "/api/rules/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRule deletes the rule with the given id.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/rules/"+url.PathEscape(id), nil, nil, nil)
}

func pageQuery(skip, limit int) url.Values {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// ListCommentLogs fetches one page of comment events.
func (c *Client) ListCommentLogs(ctx context.Context, skip, limit int) (*domain.CommentLogPage, error) {
	var out domain.CommentLogPage
	if err := c.do(ctx, http.MethodGet, "/api/logs/comments", pageQuery(skip, limit), nil, &out); err != nil {
		return nil, err
	}
	if out.Comments == nil {
		out.Comments = []*domain.CommentLog{}
	}
	return &out, nil
}

// ListDMLogs fetches one page of DM events.
func (c *Client) ListDMLogs(ctx context.Context, skip, limit int) (*domain.DMLogPage, error) {
	var out domain.DMLogPage
	if err := c.do(ctx, http.MethodGet, "/api/logs/dms", pageQuery(skip, limit), nil, &out); err != nil {
		return nil, err
	}
	if out.DMs == nil {
		out.DMs = []*domain.DMLog{}
	}
	return &out, nil
}

// Stats fetches the aggregate counters.
func (c *Client) Stats(ctx context.Context) (*domain.Stats, error) {
	var out domain.Stats
	if err := c.do(ctx, http.MethodGet, "/api/logs/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsUnauthorized reports whether err came from a 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}
