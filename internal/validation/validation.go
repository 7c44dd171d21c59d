// Package validation provides field-level validation for automation rules.
// The same rules run in the console editor and in the backend handlers so
// both sides reject the same payloads.
package validation

import (
	"errors"
	"strings"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

// Field names reported in ValidationError.Field.
const (
	FieldRuleName     = "rule_name"
	FieldCommentReply = "comment_reply"
	FieldDMMessage    = "dm_message"
	FieldKeywords     = "keywords"
)

// Messages shown next to the offending field.
const (
	MsgRuleNameRequired     = "Rule name is required"
	MsgCommentReplyRequired = "Reply message is required"
	MsgDMMessageRequired    = "DM message is required when Send DM is enabled"
	MsgKeywordEmpty         = "keywords must not be blank"
	MsgKeywordDuplicate     = "keywords must be unique"
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateRuleName checks that the rule has a non-blank name.
func ValidateRuleName(name string) error {
	if blank(name) {
		return NewValidationError(FieldRuleName, name, MsgRuleNameRequired)
	}
	return nil
}

// ValidateCommentReply checks that the reply text is non-blank.
func ValidateCommentReply(reply string) error {
	if blank(reply) {
		return NewValidationError(FieldCommentReply, reply, MsgCommentReplyRequired)
	}
	return nil
}

// ValidateDMMessage checks dm_message against the toggle it belongs to.
// The message is only required while the effective mode sends a DM.
func ValidateDMMessage(t domain.Toggle) error {
	if t.DMRequired() && blank(t.DMMessage) {
		return NewValidationError(FieldDMMessage, t.DMMessage, MsgDMMessageRequired)
	}
	return nil
}

// ValidateKeywords checks the keyword set for blank entries and duplicates.
// Duplicates are compared exactly, so "Price" and "price" are distinct.
func ValidateKeywords(keywords []string) error {
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		if blank(kw) {
			return NewValidationError(FieldKeywords, kw, MsgKeywordEmpty)
		}
		if seen[kw] {
			return NewValidationError(FieldKeywords, kw, MsgKeywordDuplicate)
		}
		seen[kw] = true
	}
	return nil
}

// ValidateRule runs every field check and collects the failures.
func ValidateRule(req domain.RuleRequest) ValidationErrors {
	var errs ValidationErrors
	for _, err := range []error{
		ValidateRuleName(req.RuleName),
		ValidateKeywords(req.Keywords),
		ValidateCommentReply(req.CommentReply),
		ValidateDMMessage(req.Toggle),
	} {
		var ve *ValidationError
		if errors.As(err, &ve) {
			errs.Add(ve.Field, ve.Value, ve.Message)
		}
	}
	return errs
}
