package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/greenroute/gateway/internal/catalog"
	"github.com/greenroute/gateway/internal/config"
	"github.com/greenroute/gateway/internal/ledger"
	"github.com/greenroute/gateway/internal/policy"
	"github.com/greenroute/gateway/internal/providers"
	"github.com/greenroute/gateway/internal/semcache"
	"github.com/greenroute/gateway/internal/tokens"
)

// suggestionPlaceholder replaces the generated answer when a switch
// suggestion is pending. No model is invoked for such a response.
const suggestionPlaceholder = "Please review the model suggestion below before proceeding"

// cacheModelLabel marks responses answered from the semantic cache.
const cacheModelLabel = "semantic-cache"

// apiError carries an HTTP status through the chat pipeline.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

// ============================================================================
// VIEWS
// ============================================================================

type modelView struct {
	ModelID          string  `json:"model_id"`
	Name             string  `json:"model_name"`
	Provider         string  `json:"provider"`
	ComplexityLevel  int     `json:"complexity_level"`
	TaskType         string  `json:"task_type,omitempty"`
	CO2              float64 `json:"co2"`
	CostInputTokens  float64 `json:"cost_input_tokens"`
	CostOutputTokens float64 `json:"cost_output_tokens"`
	Available        bool    `json:"available"`
}

func (s *Server) modelToView(m catalog.ModelDescriptor) modelView {
	return modelView{
		ModelID:          m.ModelID,
		Name:             m.Name,
		Provider:         string(m.Provider),
		ComplexityLevel:  m.ComplexityLevel,
		TaskType:         m.TaskType,
		CO2:              m.CO2,
		CostInputTokens:  m.CostInputTokens,
		CostOutputTokens: m.CostOutputTokens,
		Available:        s.registry.IsAvailable(m.Provider),
	}
}

type suggestionView struct {
	ShouldChange    bool            `json:"should_change"`
	CurrentModel    modelView       `json:"current_model"`
	SuggestedModel  *modelView      `json:"suggested_model,omitempty"`
	Direction       string          `json:"direction,omitempty"`
	Reason          string          `json:"reason"`
	Savings         *policy.Savings `json:"savings,omitempty"`
	ComplexityLevel int             `json:"complexity_level"`
}

func (s *Server) decisionToView(d policy.Decision) suggestionView {
	view := suggestionView{
		ShouldChange:    d.ShouldChange(),
		CurrentModel:    s.modelToView(d.Model),
		Reason:          d.Reason,
		ComplexityLevel: d.RequiredLevel,
	}
	if d.Candidate != nil {
		cv := s.modelToView(*d.Candidate)
		view.SuggestedModel = &cv
		view.Direction = string(d.Direction)
		savings := d.Savings
		view.Savings = &savings
	}
	return view
}

// ============================================================================
// HEALTH AND CATALOG
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"catalog_degraded": s.catalog.Degraded(),
		"cache_enabled":    s.cache != nil,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.catalog.All()
	views := make([]modelView, 0, len(models))
	for _, m := range models {
		views = append(views, s.modelToView(m))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": views})
}

// ============================================================================
// COMPLEXITY AND SUGGESTION
// ============================================================================

type complexityRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleComplexity(w http.ResponseWriter, r *http.Request) {
	var req complexityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, "query is required", http.StatusBadRequest)
		return
	}

	score := s.scorer.Score(r.Context(), req.Query)
	if s.metrics != nil {
		s.metrics.ObserveScore(score.Level, score.Defaulted)
	}

	resp := map[string]any{
		"complexity_level": score.Level,
		"defaulted":        score.Defaulted,
	}
	if decision, err := s.policy.Evaluate(score.Level, ""); err == nil {
		resp["recommended_model"] = s.modelToView(decision.Model)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type suggestModelRequest struct {
	Query   string `json:"query"`
	ModelID string `json:"selected_model_id"`
}

func (s *Server) handleSuggestModel(w http.ResponseWriter, r *http.Request) {
	var req suggestModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ModelID == "" {
		s.writeError(w, "query and model_id are required", http.StatusBadRequest)
		return
	}

	score := s.scorer.Score(r.Context(), req.Query)
	if s.metrics != nil {
		s.metrics.ObserveScore(score.Level, score.Defaulted)
	}

	decision, err := s.policy.Evaluate(score.Level, req.ModelID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownModel) {
			s.writeError(w, "unknown model: "+req.ModelID, http.StatusNotFound)
			return
		}
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if decision.ShouldChange() && s.metrics != nil {
		s.metrics.ObserveSuggestion(string(decision.Direction))
	}
	s.writeJSON(w, http.StatusOK, s.decisionToView(decision))
}

// ============================================================================
// CHAT
// ============================================================================

type chatRequest struct {
	Messages            []providers.Message `json:"messages"`
	ModelID             string              `json:"model_id"`
	UserSelected        bool                `json:"user_selected"`
	SkipSuggestionCheck bool                `json:"skip_suggestion_check"`
	Temperature         float64             `json:"temperature"`
	MaxTokens           int                 `json:"max_tokens"`
}

type chatResponse struct {
	Message             string               `json:"message"`
	ModelUsed           string               `json:"model_used"`
	CacheHit            bool                 `json:"cache_hit"`
	ComplexityLevel     int                  `json:"complexity_level,omitempty"`
	ComplexityDefaulted bool                 `json:"complexity_defaulted,omitempty"`
	SuggestionPending   bool                 `json:"suggestion_pending,omitempty"`
	Suggestion          *suggestionView      `json:"suggestion,omitempty"`
	CostEstimate        *tokens.CostEstimate `json:"cost_estimate,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, "messages must not be empty", http.StatusBadRequest)
		return
	}
	userQuery := lastUserMessage(req.Messages)
	if userQuery == "" {
		s.writeError(w, "at least one user message is required", http.StatusBadRequest)
		return
	}

	resp := &chatResponse{}

	var answer string
	var hit bool
	var err error
	if s.cache != nil {
		answer, hit, err = s.cache.GetOrCompute(r.Context(), userQuery, func(ctx context.Context) (string, error) {
			return s.completeChat(ctx, req, userQuery, resp)
		})
		if s.metrics != nil {
			s.metrics.ObserveCache(hit)
		}
	} else {
		answer, err = s.completeChat(r.Context(), req, userQuery, resp)
	}
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			s.writeError(w, ae.msg, ae.status)
			return
		}
		log.Error().Err(err).Msg("chat failed")
		s.writeError(w, "chat failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp.Message = answer
	if hit {
		resp.CacheHit = true
		resp.ModelUsed = cacheModelLabel
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// completeChat runs the scored, policy-checked generation path. The policy
// is evaluated BEFORE any model call: a pending suggestion returns the
// placeholder and spends no tokens.
func (s *Server) completeChat(ctx context.Context, req chatRequest, userQuery string, resp *chatResponse) (string, error) {
	score := s.scorer.Score(ctx, userQuery)
	if s.metrics != nil {
		s.metrics.ObserveScore(score.Level, score.Defaulted)
	}
	resp.ComplexityLevel = score.Level
	resp.ComplexityDefaulted = score.Defaulted

	var model catalog.ModelDescriptor
	if req.ModelID == "" {
		decision, err := s.policy.Evaluate(score.Level, "")
		if err != nil {
			return "", &apiError{http.StatusNotFound, err.Error()}
		}
		model = decision.Model
	} else {
		model2, err := s.catalog.ByID(req.ModelID)
		if err != nil {
			return "", &apiError{http.StatusNotFound, "unknown model: " + req.ModelID}
		}
		model = model2

		if req.UserSelected && !req.SkipSuggestionCheck {
			decision, err := s.policy.Evaluate(score.Level, req.ModelID)
			if err != nil {
				return "", &apiError{http.StatusNotFound, err.Error()}
			}
			if decision.ShouldChange() {
				if s.metrics != nil {
					s.metrics.ObserveSuggestion(string(decision.Direction))
				}
				view := s.decisionToView(decision)
				resp.Suggestion = &view
				resp.SuggestionPending = true
				resp.ModelUsed = model.ModelID
				return suggestionPlaceholder, nil
			}
		}
	}

	inv, err := s.registry.ForModel(model)
	if err != nil {
		return "", &apiError{http.StatusServiceUnavailable, err.Error()}
	}

	answer, err := inv.Invoke(ctx, providers.Request{
		Model:       model.ModelID,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", &apiError{http.StatusBadGateway, "generation failed: " + err.Error()}
	}

	resp.ModelUsed = model.ModelID
	estimate := tokens.Estimate(model, joinMessages(req.Messages), tokens.Count(answer))
	resp.CostEstimate = &estimate
	return answer, nil
}

// lastUserMessage returns the content of the final user turn.
func lastUserMessage(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func joinMessages(messages []providers.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// ============================================================================
// SEMANTIC CACHE
// ============================================================================

type cacheLookupRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
	TaskType  string  `json:"task_type"`
}

func (s *Server) handleCacheLookup(w http.ResponseWriter, r *http.Request) {
	var req cacheLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, "query is required", http.StatusBadRequest)
		return
	}
	if s.retriever == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "semantic cache unavailable",
		})
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = config.DefaultCacheLookupThreshold
	}

	matches, err := s.retriever.Retrieve(r.Context(), req.Query, threshold, 1, req.TaskType)
	if err != nil {
		s.writeError(w, "cache lookup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(matches) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "no sufficiently similar prompt found",
		})
		return
	}

	best := matches[0]
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"query":      best.Prompt,
		"answer":     best.Answer,
		"similarity": best.Similarity,
		"task_type":  best.TaskType,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.writeJSON(w, http.StatusOK, semcache.Stats{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.cache.Stats())
}

// ============================================================================
// SAVINGS
// ============================================================================

type savingsAcceptRequest struct {
	Query           string `json:"query"`
	OriginalModelID string `json:"original_model_id"`
	UserID          string `json:"user_id"`
}

// handleSavingsAccept re-evaluates the suggestion server-side instead of
// trusting client-supplied savings figures.
func (s *Server) handleSavingsAccept(w http.ResponseWriter, r *http.Request) {
	var req savingsAcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.OriginalModelID == "" {
		s.writeError(w, "query and original_model_id are required", http.StatusBadRequest)
		return
	}

	score := s.scorer.Score(r.Context(), req.Query)
	decision, err := s.policy.Evaluate(score.Level, req.OriginalModelID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownModel) {
			s.writeError(w, "unknown model: "+req.OriginalModelID, http.StatusNotFound)
			return
		}
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !decision.ShouldChange() {
		s.writeError(w, "no switch suggestion for this query and model", http.StatusBadRequest)
		return
	}

	preview := req.Query
	if len(preview) > config.DefaultQueryPreviewLen {
		preview = preview[:config.DefaultQueryPreviewLen]
	}

	id, err := s.ledger.Record(r.Context(), ledger.Record{
		OriginalModelID:    decision.Model.ModelID,
		OriginalModelName:  decision.Model.Name,
		SuggestedModelID:   decision.Candidate.ModelID,
		SuggestedModelName: decision.Candidate.Name,
		CostSavedInput:     decision.Savings.CostInputTokens,
		CostSavedOutput:    decision.Savings.CostOutputTokens,
		CO2Saved:           decision.Savings.CO2,
		ComplexityLevel:    decision.RequiredLevel,
		QueryPreview:       preview,
		UserID:             req.UserID,
	})
	if err != nil {
		log.Error().Err(err).Msg("savings record failed")
		s.writeError(w, "failed to record savings", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"recorded":  true,
		"record_id": id,
		"savings":   decision.Savings,
	})
}

func (s *Server) handleSavingsTotal(w http.ResponseWriter, r *http.Request) {
	totals, err := s.ledger.Totals(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, "failed to read savings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleSavingsByPeriod(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	daily, err := s.ledger.ByPeriod(r.Context(), days, r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, "failed to read savings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if daily == nil {
		daily = []ledger.DailySavings{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"savings": daily,
	})
}

func (s *Server) handleSwitchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.SwitchStats(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, "failed to read switch stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []ledger.SwitchStat{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"switch_stats": stats})
}
