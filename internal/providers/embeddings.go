package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultEmbeddingModel is the embedding model used by the semantic cache.
const DefaultEmbeddingModel = "text-embedding-3-small"

// EmbeddingClient embeds text via the OpenAI embeddings API.
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewEmbeddingClient creates an embedder. An empty model uses the default.
func NewEmbeddingClient(apiKey, model string, opts ...ClientOption) *EmbeddingClient {
	cfg := newClientConfig(DefaultOpenAIBaseURL, opts...)
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &EmbeddingClient{
		apiKey:     apiKey,
		baseURL:    cfg.baseURL,
		model:      model,
		httpClient: cfg.httpClient,
	}
}

// Embed returns the embedding vector for one text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", c.model); err != nil {
		return nil, fmt.Errorf("embeddings: build request: %w", err)
	}
	if body, err = sjson.SetBytes(body, "input", text); err != nil {
		return nil, fmt.Errorf("embeddings: build request: %w", err)
	}

	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/embeddings", body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	raw := gjson.GetBytes(resp, "data.0.embedding")
	if !raw.Exists() || !raw.IsArray() {
		return nil, fmt.Errorf("embeddings: malformed response")
	}

	values := raw.Array()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}
