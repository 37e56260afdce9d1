package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultAnthropicBaseURL is the production Anthropic API base URL.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

const anthropicVersion = "2023-06-01"

// defaultAnthropicMaxTokens applies when the request does not set a budget;
// the messages API requires max_tokens.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient calls the Anthropic messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicClient creates an Anthropic invoker.
func NewAnthropicClient(apiKey string, opts ...ClientOption) *AnthropicClient {
	cfg := newClientConfig(DefaultAnthropicBaseURL, opts...)
	return &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    cfg.baseURL,
		httpClient: cfg.httpClient,
	}
}

// Invoke issues a messages call and returns the assistant text.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (string, error) {
	body, err := buildAnthropicBody(req)
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/v1/messages", body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	content := gjson.GetBytes(resp, "content.0.text")
	if !content.Exists() || content.String() == "" {
		return "", fmt.Errorf("anthropic: empty completion for model %s", req.Model)
	}
	return content.String(), nil
}

// buildAnthropicBody renders the messages API request JSON. System turns go
// into the top-level system field; the messages array carries user/assistant
// turns only. Bedrock's anthropic models share this payload shape.
func buildAnthropicBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	if body, err = sjson.SetBytes(body, "max_tokens", maxTokens); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	i := 0
	for _, m := range req.Messages {
		if m.Role == "system" {
			if body, err = sjson.SetBytes(body, "system", m.Content); err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			continue
		}
		if body, err = sjson.SetBytes(body, fmt.Sprintf("messages.%d.role", i), m.Role); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body, err = sjson.SetBytes(body, fmt.Sprintf("messages.%d.content", i), m.Content); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		i++
	}

	if req.Temperature > 0 {
		if body, err = sjson.SetBytes(body, "temperature", req.Temperature); err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
	}
	return body, nil
}
