package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnthropicProvider is a reference Provider talking directly to the
// Anthropic Messages API over net/http; no vendor SDK is used.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAnthropicProvider constructs an adapter for the given API key and
// default model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1/messages",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) ModelName() string { return p.model }
func (p *AnthropicProvider) Close() error      { return nil }

// Invoke makes up to three attempts in all on transient failures
// (429/5xx), with exponential backoff, per the transport error handling row; auth and
// bad-request failures are returned as FatalError immediately.
func (p *AnthropicProvider) Invoke(ctx context.Context, messages []Message, opts Options) (Response, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	req := anthropicRequest{Model: model, MaxTokens: maxTokens, Temperature: opts.Temperature}
	for _, m := range messages {
		if m.Role == RoleSystem {
			req.System = req.System + m.Content + "\n"
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := p.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return Response{}, err
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * 200 * time.Millisecond):
		}
	}
	return Response{}, lastErr
}

func (p *AnthropicProvider) attempt(ctx context.Context, req anthropicRequest) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &FatalError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, &FatalError{Err: err}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, &RetryableError{Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, &RetryableError{Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return Response{}, classifyHTTPStatus(httpResp.StatusCode, string(raw))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &FatalError{Err: fmt.Errorf("decode anthropic response: %w", err)}
	}
	if parsed.Error != nil {
		return Response{}, &FatalError{Err: fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message)}
	}

	var text string
	for _, c := range parsed.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return Response{
		Content: text,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}
