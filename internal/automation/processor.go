// Package automation runs inbound comments through the active rules:
// keyword match, comment reply, then an optional direct message.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// Comment is one inbound comment event.
type Comment struct {
	ID                string
	PostID            string
	Text              string
	CommenterID       string
	CommenterUsername string
}

// Responder performs the outbound platform actions.
type Responder interface {
	ReplyToComment(ctx context.Context, commentID, message string) error
	SendDM(ctx context.Context, recipientID, message string) error
}

// LogResponder only logs the outbound actions.
type LogResponder struct {
	Logger *log.Logger
}

func (r LogResponder) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default().WithPrefix("responder")
}

// ReplyToComment logs the reply.
func (r LogResponder) ReplyToComment(ctx context.Context, commentID, message string) error {
	r.logger().Info("comment reply", "comment_id", commentID, "message", message)
	return nil
}

// SendDM logs the direct message.
func (r LogResponder) SendDM(ctx context.Context, recipientID, message string) error {
	r.logger().Info("direct message", "recipient_id", recipientID, "message", message)
	return nil
}

// Result describes what happened to one comment.
type Result struct {
	Rule       *domain.Rule
	Keyword    string
	CommentLog *domain.CommentLog
	DMLog      *domain.DMLog
}

// Processor matches comments against rules and records the outcome.
type Processor struct {
	store     storage.Storage
	responder Responder
	now       func() time.Time
}

// NewProcessor creates a processor. A nil responder logs actions only.
func NewProcessor(store storage.Storage, responder Responder) *Processor {
	if responder == nil {
		responder = LogResponder{}
	}
	return &Processor{
		store:     store,
		responder: responder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Match returns the first active rule, in list order, with a keyword
// contained in text.
func Match(rules []*domain.Rule, text string) (*domain.Rule, string, bool) {
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		if kw, ok := r.MatchKeyword(text); ok {
			return r, kw, true
		}
	}
	return nil, "", false
}

// Process handles one comment. It returns domain.ErrNoMatchingRule when no
// active rule matches; nothing is recorded in that case.
func (p *Processor) Process(ctx context.Context, c Comment) (*Result, error) {
	logger := log.FromContext(ctx).WithPrefix("automation")

	rules, err := p.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	rule, keyword, ok := Match(rules, c.Text)
	if !ok {
		logger.Debug("no matching rule", "comment_id", c.ID)
		return nil, domain.ErrNoMatchingRule
	}

	start := p.now()
	replyErr := p.responder.ReplyToComment(ctx, c.ID, rule.CommentReply)
	if replyErr != nil {
		logger.Error("failed to reply to comment", "comment_id", c.ID, "rule_id", rule.ID, "error", replyErr)
	}
	res := &Result{
		Rule:    rule,
		Keyword: keyword,
		CommentLog: &domain.CommentLog{
			ID:                uuid.New().String(),
			CommentID:         c.ID,
			PostID:            c.PostID,
			CommenterID:       c.CommenterID,
			CommenterUsername: c.CommenterUsername,
			CommentText:       c.Text,
			RuleID:            rule.ID,
			ReplySent:         replyErr == nil,
			ResponseMS:        p.now().Sub(start).Milliseconds(),
			Timestamp:         start,
		},
	}

	// Comment-only rules never DM, whatever send_dm and dm_message hold.
	if rule.Toggle.SendsDM() {
		status := domain.DMStatusDelivered
		if err := p.responder.SendDM(ctx, c.CommenterID, rule.EffectiveDMMessage()); err != nil {
			logger.Error("failed to send DM", "recipient", c.CommenterUsername, "rule_id", rule.ID, "error", err)
			status = domain.DMStatusFailed
		}
		res.DMLog = &domain.DMLog{
			ID:                uuid.New().String(),
			RecipientID:       c.CommenterID,
			RecipientUsername: c.CommenterUsername,
			Message:           rule.EffectiveDMMessage(),
			RuleID:            rule.ID,
			Status:            status,
			SentAt:            p.now(),
		}
	}

	if err := p.record(ctx, res); err != nil {
		return nil, err
	}
	logger.Info("automation executed", "comment_id", c.ID, "rule", rule.RuleName, "keyword", keyword, "dm", res.DMLog != nil)
	return res, nil
}

func (p *Processor) record(ctx context.Context, res *Result) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := tx.CreateCommentLog(ctx, res.CommentLog); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("recording comment: %w", err)
	}
	if res.DMLog != nil {
		if err := tx.CreateDMLog(ctx, res.DMLog); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording DM: %w", err)
		}
	}
	return tx.Commit()
}
