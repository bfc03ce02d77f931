package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/tmaxmax/go-sse"
)

// DefaultAnthropicURL is the Anthropic API base URL.
const DefaultAnthropicURL = "https://api.anthropic.com/v1"

// Anthropic streams replies from the Anthropic messages API.
type Anthropic struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int

	client *http.Client
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic returns an Anthropic provider. An empty baseURL selects
// DefaultAnthropicURL.
func NewAnthropic(baseURL, apiKey, model, systemPrompt string, maxTokens int) Anthropic {
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	return Anthropic{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       &http.Client{},
	}
}

// Chat sends prompt as a single user turn and yields the streamed text deltas.
func (a Anthropic) Chat(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reqBody := anthropicChatRequest{
			Model:     a.model,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
			System:    a.systemPrompt,
			MaxTokens: a.maxTokens,
			Stream:    true,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("anthropic: marshal request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.baseURL+"/messages", bytes.NewReader(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("anthropic: create request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := a.client.Do(req)
		if err != nil {
			yield("", fmt.Errorf("anthropic: send request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var e anthropicError
			if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Message != "" {
				yield("", fmt.Errorf("anthropic: %s: %s", e.Error.Type, e.Error.Message))
				return
			}
			yield("", fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("anthropic: read stream: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("anthropic: decode error event: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic: %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("anthropic: decode delta: %w", err))
					return
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			}
		}
	}
}
