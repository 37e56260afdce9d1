package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/tidwall/gjson"
)

// BedrockClient invokes Anthropic models hosted on AWS Bedrock. Requests are
// plain bedrock-runtime REST calls signed with SigV4; no service SDK client
// is needed for a single invoke endpoint.
type BedrockClient struct {
	region     string
	baseURL    string
	creds      aws.CredentialsProvider
	signer     *v4.Signer
	httpClient *http.Client
}

// NewBedrockClient resolves AWS credentials from the default chain. It fails
// when no credentials are resolvable, which the registry treats as "provider
// unavailable".
func NewBedrockClient(ctx context.Context, region string, opts ...ClientOption) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("bedrock: no aws credentials: %w", err)
	}

	cfg := newClientConfig(fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region), opts...)
	return &BedrockClient{
		region:     region,
		baseURL:    cfg.baseURL,
		creds:      awsCfg.Credentials,
		signer:     v4.NewSigner(),
		httpClient: cfg.httpClient,
	}, nil
}

// Invoke issues a signed model invocation and returns the assistant text.
func (c *BedrockClient) Invoke(ctx context.Context, req Request) (string, error) {
	body, err := buildAnthropicBody(req)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bedrock: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("bedrock: retrieve credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, creds, httpReq, hex.EncodeToString(sum[:]), "bedrock", c.region, time.Now()); err != nil {
		return "", fmt.Errorf("bedrock: sign request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("bedrock: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("bedrock: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bedrock: status %d: %s", resp.StatusCode, excerpt(data, 500))
	}

	content := gjson.GetBytes(data, "content.0.text")
	if !content.Exists() || content.String() == "" {
		return "", fmt.Errorf("bedrock: empty completion for model %s", req.Model)
	}
	return content.String(), nil
}
