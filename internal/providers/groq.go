package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// DefaultGroqBaseURL is the production Groq API base URL. Groq speaks the
// OpenAI chat completions dialect.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient calls the Groq chat completions API.
type GroqClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGroqClient creates a Groq invoker.
func NewGroqClient(apiKey string, opts ...ClientOption) *GroqClient {
	cfg := newClientConfig(DefaultGroqBaseURL, opts...)
	return &GroqClient{
		apiKey:     apiKey,
		baseURL:    cfg.baseURL,
		httpClient: cfg.httpClient,
	}
}

// Invoke issues a chat completion and returns the assistant text.
func (c *GroqClient) Invoke(ctx context.Context, req Request) (string, error) {
	body, err := buildChatCompletionsBody(req)
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("groq: %w", err)
	}

	content := gjson.GetBytes(resp, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return "", fmt.Errorf("groq: empty completion for model %s", req.Model)
	}
	return content.String(), nil
}
