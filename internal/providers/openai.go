package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultOpenAIBaseURL is the production OpenAI API base URL.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient creates an OpenAI invoker.
func NewOpenAIClient(apiKey string, opts ...ClientOption) *OpenAIClient {
	cfg := newClientConfig(DefaultOpenAIBaseURL, opts...)
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    cfg.baseURL,
		httpClient: cfg.httpClient,
	}
}

// Invoke issues a chat completion and returns the assistant text.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (string, error) {
	body, err := buildChatCompletionsBody(req)
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	content := gjson.GetBytes(resp, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return "", fmt.Errorf("openai: empty completion for model %s", req.Model)
	}
	return content.String(), nil
}

// buildChatCompletionsBody renders the OpenAI-compatible request JSON.
// Groq shares this shape.
func buildChatCompletionsBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for i, m := range req.Messages {
		if body, err = sjson.SetBytes(body, fmt.Sprintf("messages.%d.role", i), m.Role); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body, err = sjson.SetBytes(body, fmt.Sprintf("messages.%d.content", i), m.Content); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
	}
	if req.Temperature > 0 {
		if body, err = sjson.SetBytes(body, "temperature", req.Temperature); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", req.MaxTokens); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
	}
	return body, nil
}

// postJSON posts a JSON body and returns the raw response body. Non-2xx
// responses become errors carrying a bounded body excerpt.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, excerpt(data, 500))
	}
	return data, nil
}

func excerpt(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
