package reply

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama asks a local Ollama server for replies.
type Ollama struct {
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama returns an Ollama provider talking to host.
func NewOllama(host, model, systemPrompt string) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("ollama: parse host %q: %w", host, err)
	}

	return Ollama{
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// Chat yields the response chunks streamed by the server.
func (o Ollama) Chat(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var msgs []api.Message
		if o.systemPrompt != "" {
			msgs = append(msgs, api.Message{Role: "system", Content: o.systemPrompt})
		}
		msgs = append(msgs, api.Message{Role: "user", Content: prompt})

		stream := false
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &stream,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", fmt.Errorf("ollama: chat: %w", err))
		}
	}
}
