package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ModelErrorKind classifies a failed model call.
type ModelErrorKind string

const (
	// ErrKindTimeout means no response arrived within the deadline.
	ErrKindTimeout ModelErrorKind = "timeout"
	// ErrKindUpstream means the provider returned a non-success response.
	ErrKindUpstream ModelErrorKind = "upstream"
)

// ModelError wraps a failed model invocation. Callers must fall back to a
// generic reply and must not advance the extraction stage.
type ModelError struct {
	Kind ModelErrorKind
	Err  error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error (%s): %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// DefaultTimeout bounds a model turn when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Executor runs one conversational turn against the configured model. It is
// side-effect free beyond the network call; persistence belongs to the
// caller.
type Executor struct {
	model   llms.LLM
	timeout time.Duration
}

// NewExecutor wraps a model with a per-turn deadline.
func NewExecutor(model llms.LLM, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{model: model, timeout: timeout}
}

// Run invokes the model with the assembled prompt and returns its raw reply.
// Failures are classified as *ModelError; the turn is abandoned on timeout,
// never retried inline.
func (e *Executor) Run(ctx context.Context, promptText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.model.Call(ctx, promptText)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ModelError{Kind: ErrKindTimeout, Err: err}
		}
		return "", &ModelError{Kind: ErrKindUpstream, Err: err}
	}
	return reply, nil
}
