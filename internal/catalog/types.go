// Package catalog holds the model catalog: every candidate model the router
// may select, tagged with its complexity floor, cost, and emissions.
//
// DESIGN: The catalog is a read-mostly snapshot. Queries never touch the
// backing store directly; Refresh() reloads the snapshot from the store and
// falls back to the built-in table when the store is unreachable, so every
// query method degrades uniformly.
package catalog

import (
	"errors"
	"fmt"
)

// Provider identifies which upstream vendor serves a model.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGroq      Provider = "groq"
	ProviderBedrock   Provider = "bedrock"
)

// ErrUnknownModel is returned when a model ID is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// ModelDescriptor describes a callable model. Descriptors are immutable:
// they are loaded at startup (or on refresh) and never mutated afterwards.
type ModelDescriptor struct {
	ModelID          string   `yaml:"model_id" json:"id"`
	Name             string   `yaml:"name" json:"name"`
	Provider         Provider `yaml:"provider" json:"provider"`
	ComplexityLevel  int      `yaml:"complexity_level" json:"complexity_level"`
	TaskType         string   `yaml:"task_type" json:"task_type"`
	CO2              float64  `yaml:"co2" json:"co2"`
	CostInputTokens  float64  `yaml:"cost_input_tokens" json:"cost_input_tokens"`
	CostOutputTokens float64  `yaml:"cost_output_tokens" json:"cost_output_tokens"`
}

// Validate checks descriptor invariants.
func (m ModelDescriptor) Validate() error {
	if m.ModelID == "" {
		return fmt.Errorf("model_id must not be empty")
	}
	if m.ComplexityLevel < 1 || m.ComplexityLevel > 10 {
		return fmt.Errorf("model %q: complexity_level must be in [1,10], got %d", m.ModelID, m.ComplexityLevel)
	}
	if m.CostInputTokens < 0 || m.CostOutputTokens < 0 {
		return fmt.Errorf("model %q: costs must be >= 0", m.ModelID)
	}
	if m.CO2 < 0 {
		return fmt.Errorf("model %q: co2 must be >= 0", m.ModelID)
	}
	return nil
}

// ZeroEconomics reports whether the descriptor carries no cost/emissions
// data. Static fallback entries look like this; savings computed against
// them are meaningless and should be reported as unknown.
func (m ModelDescriptor) ZeroEconomics() bool {
	return m.CostInputTokens == 0 && m.CostOutputTokens == 0 && m.CO2 == 0
}
