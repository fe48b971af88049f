// Package domain defines the generation orchestration contract: credit gate,
// upstream call, transcript persistence and ledger settlement as one flow.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrRateLimited is returned when the per-user generation budget is spent.
	ErrRateLimited = errors.New("generation rate limit exceeded")
	// ErrEmptyPrompt rejects requests with no usable prompt text.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// Request carries one generation attempt. TranscriptID nil means a new
// conversation is started, titled from the prompt.
type Request struct {
	UserID       snowflake.ID
	Prompt       string
	TranscriptID *snowflake.ID
}

// Result is the outcome of a finished generation.
type Result struct {
	TranscriptID snowflake.ID
	Content      string
}

// Service runs generations end to end. GenerateStream forwards fragments
// through yield as they arrive; once the stream ends it persists the
// accumulated text and settles the ledger regardless of how the stream
// terminated. A yield error is treated as the consumer going away, not a
// failure: whatever was produced is still persisted and billed.
type Service interface {
	GenerateStream(ctx context.Context, req Request, yield func(fragment string) error) (*Result, error)
	GenerateOnce(ctx context.Context, req Request) (*Result, error)
}
