// Package llm provides the generation-engine capability consumed by the chat
// streamer. The engine itself is external; this package holds the interface
// and the OpenAI-compatible adapter.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator produces a streamed completion for one chat turn. onToken is
// called once per emitted token; implementations must stop promptly when ctx
// is cancelled or when onToken returns an error.
type Generator interface {
	Generate(ctx context.Context, message string, onToken func(token string) error) error
}

// OpenAI implements Generator against any OpenAI-compatible chat API.
type OpenAI struct {
	model llms.Model
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates a streaming chat client. A token of "none" is accepted by
// local OpenAI-compatible services.
func NewOpenAI(baseURL, token, model string) (*OpenAI, error) {
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &OpenAI{model: client}, nil
}

// Generate streams a completion for message, forwarding each chunk to
// onToken.
func (o *OpenAI) Generate(ctx context.Context, message string, onToken func(token string) error) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, o.model, message,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}))
	if err != nil {
		return fmt.Errorf("llm: generate: %w", err)
	}
	return nil
}
