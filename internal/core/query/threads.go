package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/driver"
)

const (
	ModeBasic      = "basic"
	ModeSummarized = "summarized"
)

type ThreadOptions struct {
	Mode      string  `json:"mode,omitempty"`
	MinRating float64 `json:"minRating,omitempty"`
}

// ThreadContext returns the context block for a conversation thread. When no mode was
// asked for and the default one fails, it retries once in basic mode.
func (s *Service) ThreadContext(ctx context.Context, threadID string, opts ThreadOptions) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", apperr.Validation("threadId", "required")
	}
	switch opts.Mode {
	case "", ModeBasic, ModeSummarized:
	default:
		return "", apperr.Validation("mode", "unsupported context mode %q", opts.Mode)
	}
	if opts.MinRating < 0 || opts.MinRating > 1 {
		return "", apperr.Validation("minRating", "must be between 0 and 1")
	}
	minRating := opts.MinRating
	if minRating == 0 {
		minRating = DefaultMinRating
	}

	out, err := s.graph.ThreadContext(ctx, threadID, driver.ThreadContextOptions{Mode: opts.Mode, MinRating: minRating})
	if err != nil {
		s.log.Error("Failed to get thread context", "threadId", threadID, "error", err)
		if opts.Mode == "" {
			s.log.Info("Falling back to basic context mode", "threadId", threadID)
			return s.ThreadContext(ctx, threadID, ThreadOptions{Mode: ModeBasic, MinRating: opts.MinRating})
		}
		return "", fmt.Errorf("get thread context: %w", err)
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeSummarized
	}
	s.log.Debug("Retrieved thread context", "threadId", threadID, "mode", mode)
	return out, nil
}

// CreateThread opens a conversation thread attached to the project's graph.
func (s *Service) CreateThread(ctx context.Context, projectID, userID string, metadata map[string]interface{}) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", apperr.Validation("projectId", "required")
	}
	if strings.TrimSpace(userID) == "" {
		return "", apperr.Validation("userId", "required")
	}

	now := s.Now().UTC()
	threadID := fmt.Sprintf("thread_%s_%d", projectID, now.UnixMilli())
	meta := map[string]interface{}{
		"projectId": projectID,
		"createdBy": userID,
		"createdAt": now.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	if err := s.graph.CreateThread(ctx, threadID, ingest.GraphID(projectID), meta); err != nil {
		s.log.Error("Failed to create thread", "projectId", projectID, "error", err)
		return "", err
	}
	s.log.Info("Thread created", "threadId", threadID, "projectId", projectID)
	return threadID, nil
}

// AddMessage appends one message to a thread.
func (s *Service) AddMessage(ctx context.Context, threadID string, msg model.Message) error {
	switch msg.Role {
	case "user", "assistant", "system":
	default:
		return apperr.Validation("role", "unsupported message role %q", msg.Role)
	}
	if err := s.graph.AddMessages(ctx, threadID, []model.Message{msg}); err != nil {
		s.log.Error("Failed to add message to thread", "threadId", threadID, "error", err)
		return err
	}
	s.log.Debug("Message added to thread", "threadId", threadID, "role", msg.Role)
	return nil
}

// ThreadMessages returns the thread's messages, oldest first, capped at limit when positive.
func (s *Service) ThreadMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	msgs, err := s.graph.ThreadMessages(ctx, threadID, limit)
	if err != nil {
		s.log.Error("Failed to get thread messages", "threadId", threadID, "error", err)
		return nil, err
	}
	s.log.Debug("Retrieved thread messages", "threadId", threadID, "count", len(msgs))
	return msgs, nil
}
