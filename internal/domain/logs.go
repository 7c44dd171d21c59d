package domain

import "time"

// DM delivery states recorded on a DMLog.
const (
	DMStatusDelivered = "delivered"
	DMStatusFailed    = "failed"
	DMStatusPending   = "pending"
)

// CommentLog records one inbound comment and whether a reply went out.
type CommentLog struct {
	ID                string    `json:"id" db:"id"`
	CommentID         string    `json:"comment_id" db:"comment_id"`
	PostID            string    `json:"post_id" db:"post_id"`
	CommenterID       string    `json:"commenter_id" db:"commenter_id"`
	CommenterUsername string    `json:"commenter_username" db:"commenter_username"`
	CommentText       string    `json:"comment_text" db:"comment_text"`
	RuleID            string    `json:"rule_id,omitempty" db:"rule_id"`
	ReplySent         bool      `json:"reply_sent" db:"reply_sent"`
	ResponseMS        int64     `json:"response_ms" db:"response_ms"`
	Timestamp         time.Time `json:"timestamp" db:"commented_at"`
}

// DMLog records one direct message sent (or attempted) by a rule.
type DMLog struct {
	ID                string    `json:"id" db:"id"`
	RecipientID       string    `json:"recipient_id" db:"recipient_id"`
	RecipientUsername string    `json:"recipient_username" db:"recipient_username"`
	Message           string    `json:"message" db:"message"`
	RuleID            string    `json:"rule_id,omitempty" db:"rule_id"`
	Status            string    `json:"status" db:"status"`
	SentAt            time.Time `json:"sent_at" db:"sent_at"`
}

// CommentLogPage is the response body of GET /api/logs/comments.
type CommentLogPage struct {
	Comments []*CommentLog `json:"comments"`
	Total    int           `json:"total"`
}

// DMLogPage is the response body of GET /api/logs/dms.
type DMLogPage struct {
	DMs   []*DMLog `json:"dms"`
	Total int      `json:"total"`
}

// Page bounds a log listing.
type Page struct {
	Skip  int
	Limit int
}

// Paging defaults for log listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// LogFilter narrows log counts. Zero fields do not filter.
type LogFilter struct {
	Since     time.Time
	Until     time.Time
	Status    string
	ReplySent *bool
}
