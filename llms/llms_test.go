package llms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("timeout")}))
	assert.False(t, IsRetryable(&FatalError{Err: errors.New("bad request")}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.True(t, IsRetryable(classifyHTTPStatus(429, "rate limited")))
	assert.True(t, IsRetryable(classifyHTTPStatus(503, "unavailable")))

	var fatal *FatalError
	assert.True(t, errors.As(classifyHTTPStatus(401, "unauthorized"), &fatal))
	assert.True(t, errors.As(classifyHTTPStatus(400, "bad request"), &fatal))

	err := classifyHTTPStatus(418, "teapot")
	assert.False(t, IsRetryable(err))
	assert.False(t, errors.As(err, &fatal))
}

func TestRegistry_CreateFromConfig(t *testing.T) {
	reg := NewRegistry()

	anthropic, err := reg.CreateFromConfig("writer-llm", ProviderConfig{Type: "anthropic", Model: "claude-3"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3", anthropic.ModelName())

	openai, err := reg.CreateFromConfig("reviewer-llm", ProviderConfig{Type: "openai", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", openai.ModelName())

	got, ok := reg.Get("writer-llm")
	require.True(t, ok)
	assert.Equal(t, anthropic, got)
}

func TestRegistry_CreateFromConfig_UnsupportedType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateFromConfig("x", ProviderConfig{Type: "made-up"})
	assert.Error(t, err)
}

func TestRegistry_CreateFromConfig_EmptyName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateFromConfig("", ProviderConfig{Type: "anthropic"})
	assert.Error(t, err)
}

func TestAnthropicProvider_InvokeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"content":[{"type":"text","text":"hello"}],"usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer server.Close()

	p := &AnthropicProvider{apiKey: "test-key", model: "claude-3", baseURL: server.URL, client: server.Client()}
	resp, err := p.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 5, resp.Usage.InputTokens)
}

func TestAnthropicProvider_FatalErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	p := &AnthropicProvider{apiKey: "bad", model: "claude-3", baseURL: server.URL, client: server.Client()}
	_, err := p.Invoke(context.Background(), nil, Options{})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)

	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
}

func TestAnthropicProvider_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer server.Close()

	p := &AnthropicProvider{apiKey: "k", model: "claude-3", baseURL: server.URL, client: server.Client()}
	resp, err := p.Invoke(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestAnthropicProvider_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &AnthropicProvider{apiKey: "k", model: "claude-3", baseURL: server.URL, client: server.Client()}
	_, err := p.Invoke(ctx, nil, Options{})
	assert.Error(t, err)
}

func TestOpenAIProvider_InvokeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("authorization"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer server.Close()

	p := &OpenAIProvider{apiKey: "test-key", model: "gpt-4o", baseURL: server.URL, client: server.Client()}
	resp, err := p.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestOpenAIProvider_EmptyChoicesIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := &OpenAIProvider{apiKey: "k", model: "gpt-4o", baseURL: server.URL, client: server.Client()}
	_, err := p.Invoke(context.Background(), nil, Options{})

	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
}
