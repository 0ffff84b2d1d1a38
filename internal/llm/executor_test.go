package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubLLM is a canned llms.LLM implementation.
type stubLLM struct {
	reply string
	err   error
	delay time.Duration
}

func (s *stubLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *stubLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errors.New("not implemented")
}

func TestRunReturnsReply(t *testing.T) {
	exec := NewExecutor(&stubLLM{reply: "Hello!"}, time.Second)

	reply, err := exec.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
}

func TestRunClassifiesTimeout(t *testing.T) {
	exec := NewExecutor(&stubLLM{reply: "late", delay: 200 * time.Millisecond}, 20*time.Millisecond)

	_, err := exec.Run(context.Background(), "hi")
	require.Error(t, err)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, ErrKindTimeout, modelErr.Kind)
}

func TestRunClassifiesUpstream(t *testing.T) {
	exec := NewExecutor(&stubLLM{err: errors.New("429 too many requests")}, time.Second)

	_, err := exec.Run(context.Background(), "hi")
	require.Error(t, err)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, ErrKindUpstream, modelErr.Kind)
}
