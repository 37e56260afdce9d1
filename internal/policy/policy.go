// Package policy decides which model should serve a query.
//
// DESIGN: Pure decision logic over the catalog snapshot: no I/O, no side
// effects, idempotent for a fixed snapshot. The serving flow must evaluate
// the decision BEFORE invoking any model so that a suggestion short-circuits
// generation instead of discarding a paid-for answer.
package policy

import (
	"errors"
	"fmt"

	"github.com/greenroute/gateway/internal/catalog"
)

// SuggestionThreshold is the minimum complexity mismatch that triggers a
// switch suggestion. A 1-point difference is treated as scorer noise.
const SuggestionThreshold = 2

// ErrNoModelAvailable is returned when no catalog entry meets the required
// complexity level.
var ErrNoModelAvailable = errors.New("no model available for required complexity")

// Action says what the caller should do with the evaluated model choice.
type Action string

const (
	// ActionAutoSelect means no model was given; use Decision.Model.
	ActionAutoSelect Action = "auto_select"
	// ActionKeep means the given model is appropriate; use it as-is.
	ActionKeep Action = "keep"
	// ActionSuggest means a switch to Decision.Candidate is recommended.
	ActionSuggest Action = "suggest"
)

// Direction classifies a suggestion.
type Direction string

const (
	// DirectionDowngrade: the current model is over-qualified, a cheaper
	// model suffices.
	DirectionDowngrade Direction = "downgrade"
	// DirectionUpgrade: the current model is under-qualified for the task.
	DirectionUpgrade Direction = "upgrade"
)

// Savings holds the component-wise delta (current − candidate). Values are
// negative for an upgrade: a cost increase is reported as such, not hidden.
type Savings struct {
	CostInputTokens  float64 `json:"cost_input_tokens"`
	CostOutputTokens float64 `json:"cost_output_tokens"`
	CO2              float64 `json:"co2"`
	// Known is false when either descriptor carries no economics data
	// (static fallback); the delta is then meaningless and callers should
	// render "savings unknown" rather than $0.00.
	Known bool `json:"known"`
}

// Decision is the outcome of evaluating one query's model choice.
type Decision struct {
	Action        Action
	Model         catalog.ModelDescriptor  // the model to run (auto-selected or kept)
	Candidate     *catalog.ModelDescriptor // suggested replacement, nil unless ActionSuggest
	Direction     Direction                // set only for ActionSuggest
	Savings       Savings                  // set only for ActionSuggest
	RequiredLevel int
	Reason        string
}

// ShouldChange reports whether the decision carries a switch suggestion.
func (d Decision) ShouldChange() bool {
	return d.Action == ActionSuggest
}

// Policy evaluates model choices against the catalog.
type Policy struct {
	cat *catalog.Catalog
}

// New creates a selection policy over the given catalog.
func New(cat *catalog.Catalog) *Policy {
	return &Policy{cat: cat}
}

// Evaluate reconciles the required complexity level with an optional
// user-chosen model. An empty currentModelID auto-selects the cheapest
// sufficient model. Errors: ErrNoModelAvailable, catalog.ErrUnknownModel.
func (p *Policy) Evaluate(requiredLevel int, currentModelID string) (Decision, error) {
	requiredLevel = clampLevel(requiredLevel)

	if currentModelID == "" {
		candidates := p.cat.MeetingOrExceeding(requiredLevel)
		if len(candidates) == 0 {
			return Decision{}, fmt.Errorf("%w: level %d", ErrNoModelAvailable, requiredLevel)
		}
		return Decision{
			Action:        ActionAutoSelect,
			Model:         candidates[0],
			RequiredLevel: requiredLevel,
		}, nil
	}

	current, err := p.cat.ByID(currentModelID)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate model %q: %w", currentModelID, err)
	}

	keep := Decision{
		Action:        ActionKeep,
		Model:         current,
		RequiredLevel: requiredLevel,
		Reason: fmt.Sprintf("Your selected model is appropriate for this task (required complexity: %d, model complexity: %d).",
			requiredLevel, current.ComplexityLevel),
	}

	diff := current.ComplexityLevel - requiredLevel
	if abs(diff) < SuggestionThreshold {
		return keep, nil
	}

	candidates := p.cat.MeetingOrExceeding(requiredLevel)
	if len(candidates) == 0 {
		keep.Reason = fmt.Sprintf("No catalog model meets complexity level %d; keeping your selection.", requiredLevel)
		return keep, nil
	}
	candidate := candidates[0]
	if candidate.ModelID == current.ModelID {
		return keep, nil
	}

	direction := DirectionUpgrade
	reason := fmt.Sprintf("Your task requires complexity level %d, but you selected a model with complexity level %d. The suggested model is better suited for this task.",
		requiredLevel, current.ComplexityLevel)
	if diff > 0 {
		direction = DirectionDowngrade
		reason = fmt.Sprintf("Your task requires complexity level %d, but you selected a model with complexity level %d. The suggested model is more cost-effective and energy-efficient for this task.",
			requiredLevel, current.ComplexityLevel)
	}

	return Decision{
		Action:        ActionSuggest,
		Model:         current,
		Candidate:     &candidate,
		Direction:     direction,
		RequiredLevel: requiredLevel,
		Reason:        reason,
		Savings: Savings{
			CostInputTokens:  current.CostInputTokens - candidate.CostInputTokens,
			CostOutputTokens: current.CostOutputTokens - candidate.CostOutputTokens,
			CO2:              current.CO2 - candidate.CO2,
			Known:            !current.ZeroEconomics() && !candidate.ZeroEconomics(),
		},
	}, nil
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 10 {
		return 10
	}
	return level
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
