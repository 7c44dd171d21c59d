package domain

import (
	"strings"
	"time"
)

// ActionMode is the interpretation of a rule's toggle fields.
// It is always derived from Toggle and never stored.
type ActionMode string

const (
	ModeCommentOnly  ActionMode = "comment_only"
	ModeCommentAndDM ActionMode = "comment_and_dm"
)

// Label returns the display label used by the console.
func (m ActionMode) Label() string {
	if m == ModeCommentAndDM {
		return "Comment + DM"
	}
	return "Comment Only"
}

// Toggle holds the raw DM switches of a rule. When CommentOnly is set,
// SendDM and DMMessage are retained but inert.
type Toggle struct {
	CommentOnly bool   `json:"comment_only" db:"comment_only"`
	SendDM      bool   `json:"send_dm" db:"send_dm"`
	DMMessage   string `json:"dm_message" db:"dm_message"`
}

// Mode derives the effective action mode from the toggle fields.
func (t Toggle) Mode() ActionMode {
	if !t.CommentOnly && t.SendDM {
		return ModeCommentAndDM
	}
	return ModeCommentOnly
}

// SendsDM reports whether a DM is part of the effective action.
func (t Toggle) SendsDM() bool {
	return t.Mode() == ModeCommentAndDM
}

// DMRequired reports whether dm_message must be non-empty.
func (t Toggle) DMRequired() bool {
	return t.SendsDM()
}

// Rule is an automation rule mapping keyword triggers to a comment reply
// and an optional direct message.
type Rule struct {
	ID           string    `json:"id,omitempty" db:"id"`
	RuleName     string    `json:"rule_name" db:"rule_name"`
	Keywords     []string  `json:"keywords" db:"-"` // Stored in separate table
	CommentReply string    `json:"comment_reply" db:"comment_reply"`
	Toggle       Toggle    `json:"toggle" db:"-"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at,omitzero" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitzero" db:"updated_at"`
}

// Mode returns the effective action mode of the rule.
func (r *Rule) Mode() ActionMode {
	return r.Toggle.Mode()
}

// EffectiveDMMessage returns the DM text that will be sent, or "" when the
// rule does not send a DM regardless of what dm_message holds.
func (r *Rule) EffectiveDMMessage() string {
	if !r.Toggle.SendsDM() {
		return ""
	}
	return r.Toggle.DMMessage
}

// MatchKeyword returns the first keyword contained in text, compared
// case-insensitively, and whether one matched.
func (r *Rule) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range r.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	RuleName     string   `json:"rule_name"`
	Keywords     []string `json:"keywords"`
	CommentReply string   `json:"comment_reply"`
	Toggle       Toggle   `json:"toggle"`
	IsActive     bool     `json:"is_active"`
}

// Request converts a rule into its write payload (everything but id and timestamps).
func (r *Rule) Request() RuleRequest {
	keywords := r.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return RuleRequest{
		RuleName:     r.RuleName,
		Keywords:     keywords,
		CommentReply: r.CommentReply,
		Toggle:       r.Toggle,
		IsActive:     r.IsActive,
	}
}

// RuleList is the response body of GET /api/rules.
type RuleList struct {
	Rules []*Rule `json:"rules"`
}

// ActivationFilter selects rules by is_active.
type ActivationFilter string

const (
	FilterAll      ActivationFilter = "all"
	FilterActive   ActivationFilter = "active"
	FilterInactive ActivationFilter = "inactive"
)

// ParseActivationFilter parses a filter name, falling back to FilterAll.
func ParseActivationFilter(s string) ActivationFilter {
	switch ActivationFilter(s) {
	case FilterActive:
		return FilterActive
	case FilterInactive:
		return FilterInactive
	default:
		return FilterAll
	}
}

// Matches reports whether the rule passes the filter.
func (f ActivationFilter) Matches(r *Rule) bool {
	switch f {
	case FilterActive:
		return r.IsActive
	case FilterInactive:
		return !r.IsActive
	default:
		return true
	}
}
