// Package workflow is a client for the hosted Dost chat workflow: a JSON
// HTTP endpoint that runs the user's message through a prompt pipeline and
// returns the reply somewhere in a loosely specified response document.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/dost/internal/chat"
)

// DefaultTimeout bounds a single workflow call.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// replyPaths are tried in order; the first non-empty string wins.
var replyPaths = []string{
	"data.outputVariables.final_response",
	"outputVariables.final_response",
	"output_variables.final_response",
	"data.message",
	"message",
}

var (
	// ErrNoReply is returned when the response holds no reply text.
	ErrNoReply = errors.New("workflow: response has no reply")

	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("workflow: unexpected status")
)

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// Client calls the workflow endpoint. It implements [chat.Responder].
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

var _ chat.Responder = (*Client)(nil)

// New creates a Client for the execute URL of a workflow.
func New(url, apiKey string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("workflow: url must not be empty")
	}
	c := &Client{url: url, apiKey: apiKey, http: http.DefaultClient, timeout: DefaultTimeout}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Name implements chat.Responder.
func (c *Client) Name() string { return "workflow" }

type executeRequest struct {
	InputVariables struct {
		UserMessage string `json:"user_message"`
	} `json:"inputVariables"`
}

// Respond implements chat.Responder.
func (c *Client) Respond(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload executeRequest
	payload.InputVariables.UserMessage = message
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("workflow: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("workflow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("workflow: execute: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("workflow: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return ExtractReply(raw)
}

// ExtractReply finds the reply text in a workflow response document.
func ExtractReply(doc []byte) (string, error) {
	if !gjson.ValidBytes(doc) {
		return "", fmt.Errorf("%w: invalid JSON", ErrNoReply)
	}
	for _, r := range gjson.GetManyBytes(doc, replyPaths...) {
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str, nil
		}
	}
	return "", ErrNoReply
}
