package reply

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI asks an OpenAI-compatible chat completion API for replies.
type OpenAI struct {
	model        string
	systemPrompt string
	maxTokens    int

	client *goopenai.Client
	logger *slog.Logger
}

// NewOpenAI returns an OpenAI provider. baseURL may point at any compatible
// server; empty keeps the library default.
func NewOpenAI(baseURL, apiKey, model, systemPrompt string, maxTokens int, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       goopenai.NewClientWithConfig(cfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

// Chat yields the whole completion as one chunk.
func (o OpenAI) Chat(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var msgs []goopenai.ChatCompletionMessage
		if o.systemPrompt != "" {
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: o.systemPrompt,
			})
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleUser,
			Content: prompt,
		})

		resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:     o.model,
			Messages:  msgs,
			MaxTokens: o.maxTokens,
		})
		if err != nil {
			yield("", fmt.Errorf("openai: create completion: %w", err))
			return
		}

		if len(resp.Choices) == 0 {
			yield("", errors.New("openai: no choices found"))
			return
		}

		o.logger.DebugContext(ctx, "completion",
			slog.String("model", resp.Model),
			slog.Int("total_tokens", resp.Usage.TotalTokens))

		yield(resp.Choices[0].Message.Content, nil)
	}
}
