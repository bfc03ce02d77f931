package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/johndosdos/claudespark/internal/dispatch"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
	Nonce   string `json:"nonce,omitempty"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrBadResponse is returned for a non-2xx status or a body without a reply.
var ErrBadResponse = errors.New("reply: bad response from reply endpoint")

// Client calls a remote /api/chat endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a Client posting to url.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Generate implements dispatch.ReplyGenerator.
func (c *Client) Generate(ctx context.Context, req dispatch.Request) (string, error) {
	body, err := json.Marshal(ChatRequest{Message: req.Text, Nonce: req.Nonce})
	if err != nil {
		return "", fmt.Errorf("reply: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reply: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("reply: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	// Any string is a reply, including "". Only a body without the field is
	// malformed.
	var out struct {
		Reply *string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if out.Reply == nil {
		return "", fmt.Errorf("%w: missing reply", ErrBadResponse)
	}

	return *out.Reply, nil
}

// Local calls a Service in-process.
type Local struct {
	Service *Service
}

// Generate implements dispatch.ReplyGenerator.
func (l Local) Generate(ctx context.Context, req dispatch.Request) (string, error) {
	return l.Service.Reply(ctx, req.ViewerID, req.Text, req.Nonce)
}
