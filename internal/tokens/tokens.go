// Package tokens estimates token counts and per-request cost.
//
// DESIGN: Counts use the cl100k_base BPE when available and degrade to the
// chars/4 heuristic when the encoding cannot be loaded (tiktoken fetches its
// vocabulary lazily). Estimates feed response metadata and logs only; they
// are never used for correctness decisions.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/greenroute/gateway/internal/catalog"
)

// EstimateRatio is the approximate number of characters per token, used
// when exact counts aren't available.
const EstimateRatio = 4

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// Count returns the token count of text.
func Count(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		return (len(text) + EstimateRatio - 1) / EstimateRatio
	}
	return len(encoding.Encode(text, nil, nil))
}

// CostEstimate is the projected spend for one request against one model.
type CostEstimate struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Estimate projects the cost of sending inputText to a model, assuming the
// given output budget. Descriptor costs are per million tokens.
func Estimate(m catalog.ModelDescriptor, inputText string, outputTokens int) CostEstimate {
	inputTokens := Count(inputText)
	cost := float64(inputTokens)/1_000_000*m.CostInputTokens +
		float64(outputTokens)/1_000_000*m.CostOutputTokens
	return CostEstimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	}
}
