package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Outbound action kinds written by FileResponder.
const (
	ActionCommentReply  = "comment_reply"
	ActionDirectMessage = "direct_message"
)

// OutboundAction is one line of a FileResponder journal.
type OutboundAction struct {
	Kind     string    `json:"kind"`
	TargetID string    `json:"target_id"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// FileResponder is a development Responder that appends every outbound
// action to a JSON lines file instead of calling the platform.
type FileResponder struct {
	filePath string
	mu       sync.Mutex
	now      func() time.Time
}

var _ Responder = (*FileResponder)(nil)

// NewFileResponder creates a responder journaling to filePath.
func NewFileResponder(filePath string) *FileResponder {
	return &FileResponder{
		filePath: filePath,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (f *FileResponder) append(ctx context.Context, kind, target, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(OutboundAction{Kind: kind, TargetID: target, Message: message, At: f.now()})
	if err != nil {
		return fmt.Errorf("marshaling action: %w", err)
	}

	file, err := os.OpenFile(f.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening responder file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing responder file: %w", err)
	}

	log.FromContext(ctx).Debug("outbound action journaled", "kind", kind, "target_id", target, "file", f.filePath)
	return nil
}

// ReplyToComment journals a comment reply.
func (f *FileResponder) ReplyToComment(ctx context.Context, commentID, message string) error {
	return f.append(ctx, ActionCommentReply, commentID, message)
}

// SendDM journals a direct message.
func (f *FileResponder) SendDM(ctx context.Context, recipientID, message string) error {
	return f.append(ctx, ActionDirectMessage, recipientID, message)
}

// ReadActions returns every journaled action in order. A missing file
// holds no actions.
func ReadActions(filePath string) ([]OutboundAction, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading responder file: %w", err)
	}

	var actions []OutboundAction
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var a OutboundAction
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("parsing responder file: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
