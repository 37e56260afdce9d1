package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroute/gateway/internal/catalog"
	"github.com/greenroute/gateway/internal/config"
	"github.com/greenroute/gateway/internal/ledger"
	"github.com/greenroute/gateway/internal/monitoring"
	"github.com/greenroute/gateway/internal/policy"
	"github.com/greenroute/gateway/internal/providers"
	"github.com/greenroute/gateway/internal/scoring"
	"github.com/greenroute/gateway/internal/semcache"
)

type fixedStore struct {
	models []catalog.ModelDescriptor
}

func (f *fixedStore) ListModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	return f.models, nil
}

type stubGrader struct {
	reply string
}

func (s stubGrader) Grade(ctx context.Context, system, user string) (string, error) {
	return s.reply, nil
}

type stubIndex struct {
	neighbors []semcache.Neighbor
}

func (s *stubIndex) NearestNeighbors(ctx context.Context, query string, k int, taskType string) ([]semcache.Neighbor, error) {
	return s.neighbors, nil
}

func testCatalogModels() []catalog.ModelDescriptor {
	return []catalog.ModelDescriptor{
		{ModelID: "nano", Name: "Nano", Provider: catalog.ProviderOpenAI, ComplexityLevel: 2, CostInputTokens: 0.05, CostOutputTokens: 0.1, CO2: 0.1},
		{ModelID: "mid", Name: "Mid", Provider: catalog.ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 0.5, CostOutputTokens: 1.5, CO2: 0.5},
		{ModelID: "claude-max", Name: "Claude Max", Provider: catalog.ProviderAnthropic, ComplexityLevel: 9, CostInputTokens: 10, CostOutputTokens: 30, CO2: 3.0},
	}
}

// testHarness bundles a fully wired server with a fake upstream.
type testHarness struct {
	handler       http.Handler
	upstreamCalls *atomic.Int64
	ledger        *ledger.Ledger
}

func newHarness(t *testing.T, graderReply string, index semcache.Index) *testHarness {
	t.Helper()

	var upstreamCalls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"generated answer"}}]}`))
	}))
	t.Cleanup(upstream.Close)

	cat := catalog.New(context.Background(), &fixedStore{models: testCatalogModels()})
	led, err := ledger.Open(filepath.Join(t.TempDir(), "savings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	registry := providers.NewRegistry(context.Background(),
		providers.Credentials{OpenAIAPIKey: "sk-test"},
		providers.WithBaseURL(upstream.URL))

	var cache *semcache.PromptCache
	var retriever *semcache.Retriever
	if index != nil {
		retriever = semcache.NewRetriever(index)
		cache = semcache.NewPromptCache(retriever, semcache.StrictThreshold)
	}

	srv := New(Deps{
		Config:    &config.Config{},
		Catalog:   cat,
		Policy:    policy.New(cat),
		Scorer:    scoring.New(stubGrader{reply: graderReply}),
		Registry:  registry,
		Ledger:    led,
		Metrics:   monitoring.New(),
		Cache:     cache,
		Retriever: retriever,
	})

	return &testHarness{handler: srv.Routes(), upstreamCalls: &upstreamCalls, ledger: led}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, body := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["catalog_degraded"])
	assert.Equal(t, false, body["cache_enabled"])
}

func TestListModelsReportsAvailability(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, body := h.do(t, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	models := body["models"].([]any)
	require.Len(t, models, 3)

	byID := map[string]map[string]any{}
	for _, m := range models {
		mm := m.(map[string]any)
		byID[mm["model_id"].(string)] = mm
	}
	assert.Equal(t, true, byID["nano"]["available"])
	assert.Equal(t, true, byID["mid"]["available"])
	// No anthropic credential in the harness.
	assert.Equal(t, false, byID["claude-max"]["available"])
}

func TestComplexityEndpoint(t *testing.T) {
	h := newHarness(t, "7", nil)

	rec, body := h.do(t, http.MethodPost, "/complexity", map[string]any{"query": "design a compiler"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["complexity_level"])
	assert.Equal(t, false, body["defaulted"])

	recommended := body["recommended_model"].(map[string]any)
	assert.Equal(t, "claude-max", recommended["model_id"])
}

func TestComplexityRequiresQuery(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodPost, "/complexity", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestModelDowngrade(t *testing.T) {
	h := newHarness(t, "2", nil)

	rec, body := h.do(t, http.MethodPost, "/suggest-model", map[string]any{
		"query":             "what is 2+2",
		"selected_model_id": "claude-max",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["should_change"])
	assert.Equal(t, "downgrade", body["direction"])
	suggested := body["suggested_model"].(map[string]any)
	assert.Equal(t, "nano", suggested["model_id"])

	savings := body["savings"].(map[string]any)
	assert.Equal(t, true, savings["known"])
	assert.InDelta(t, 10-0.05, savings["cost_input_tokens"].(float64), 1e-9)
}

func TestSuggestModelAppropriateChoiceKeeps(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, body := h.do(t, http.MethodPost, "/suggest-model", map[string]any{
		"query":             "summarize this",
		"selected_model_id": "mid",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["should_change"])
}

func TestSuggestModelUnknownModel(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodPost, "/suggest-model", map[string]any{
		"query":             "q",
		"selected_model_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatAutoSelect(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, body := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "summarize this article"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "generated answer", body["message"])
	assert.Equal(t, "mid", body["model_used"])
	assert.Equal(t, float64(5), body["complexity_level"])
	assert.NotNil(t, body["cost_estimate"])
	assert.Equal(t, int64(1), h.upstreamCalls.Load())
}

func TestChatSuggestionShortCircuitsGeneration(t *testing.T) {
	h := newHarness(t, "2", nil)

	rec, body := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages":      []map[string]string{{"role": "user", "content": "what is 2+2"}},
		"model_id":      "claude-max",
		"user_selected": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, suggestionPlaceholder, body["message"])
	assert.Equal(t, true, body["suggestion_pending"])
	suggestion := body["suggestion"].(map[string]any)
	assert.Equal(t, true, suggestion["should_change"])

	// The whole point: no upstream tokens were spent.
	assert.Equal(t, int64(0), h.upstreamCalls.Load())
}

func TestChatSkipSuggestionCheckGenerates(t *testing.T) {
	h := newHarness(t, "2", nil)

	rec, body := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages":              []map[string]string{{"role": "user", "content": "what is 2+2"}},
		"model_id":              "mid",
		"user_selected":         true,
		"skip_suggestion_check": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated answer", body["message"])
	assert.Nil(t, body["suggestion"])
	assert.Equal(t, int64(1), h.upstreamCalls.Load())
}

func TestChatCacheHitBypassesEverything(t *testing.T) {
	index := &stubIndex{neighbors: []semcache.Neighbor{
		{Prompt: semcache.CachedPrompt{Prompt: "what is 2+2", Answer: "4"}, Distance: 0.01},
	}}
	h := newHarness(t, "2", index)

	rec, body := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "what is 2+2"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "4", body["message"])
	assert.Equal(t, true, body["cache_hit"])
	assert.Equal(t, cacheModelLabel, body["model_used"])
	assert.Equal(t, int64(0), h.upstreamCalls.Load())
}

func TestChatCacheMissGenerates(t *testing.T) {
	h := newHarness(t, "5", &stubIndex{})

	rec, body := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "explain monads"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated answer", body["message"])
	assert.Equal(t, false, body["cache_hit"])
	assert.Equal(t, int64(1), h.upstreamCalls.Load())

	_, stats := h.do(t, http.MethodGet, "/cache/stats", nil)
	assert.Equal(t, float64(1), stats["cache_misses"])
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodPost, "/chat", map[string]any{"messages": []map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "system", "content": "no user turn"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnknownModel(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "q"}},
		"model_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatProviderUnavailable(t *testing.T) {
	h := newHarness(t, "9", nil)

	rec, _ := h.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hard question"}},
		"model_id": "claude-max",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCacheLookup(t *testing.T) {
	index := &stubIndex{neighbors: []semcache.Neighbor{
		{Prompt: semcache.CachedPrompt{Prompt: "stored prompt", Answer: "stored answer", TaskType: "general"}, Distance: 0.1},
	}}
	h := newHarness(t, "5", index)

	rec, body := h.do(t, http.MethodPost, "/cache/lookup", map[string]any{"query": "similar prompt"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "stored answer", body["answer"])
	assert.InDelta(t, 1.0/1.1, body["similarity"].(float64), 0.001)
}

func TestCacheLookupNoMatch(t *testing.T) {
	h := newHarness(t, "5", &stubIndex{})

	rec, body := h.do(t, http.MethodPost, "/cache/lookup", map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestCacheLookupDisabled(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, body := h.do(t, http.MethodPost, "/cache/lookup", map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "semantic cache unavailable", body["message"])
}

func TestSavingsAcceptAndAggregate(t *testing.T) {
	h := newHarness(t, "2", nil)

	rec, body := h.do(t, http.MethodPost, "/savings/accept", map[string]any{
		"query":             "what is 2+2",
		"original_model_id": "claude-max",
		"user_id":           "u1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["recorded"])
	assert.Greater(t, body["record_id"].(float64), float64(0))

	rec, totals := h.do(t, http.MethodGet, "/savings/total?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), totals["total_switches"])
	assert.InDelta(t, (10-0.05)+(30-0.1), totals["total_cost"].(float64), 1e-6)

	rec, daily := h.do(t, http.MethodGet, "/savings/by-period?days=7&user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, daily["savings"].([]any), 1)

	rec, stats := h.do(t, http.MethodGet, "/savings/switch-stats?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pairs := stats["switch_stats"].([]any)
	require.Len(t, pairs, 1)
	pair := pairs[0].(map[string]any)
	assert.Equal(t, "Claude Max", pair["original_model_name"])
	assert.Equal(t, "Nano", pair["suggested_model_name"])
}

func TestSavingsAcceptNoSuggestion(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodPost, "/savings/accept", map[string]any{
		"query":             "summarize",
		"original_model_id": "mid",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSavingsByPeriodRejectsBadDays(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodGet, "/savings/by-period?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/savings/by-period?days=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSavingsTotalEmptyUser(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, totals := h.do(t, http.MethodGet, "/savings/total?user_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), totals["total_switches"])
	assert.Equal(t, float64(0), totals["total_cost"])
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t, "5", nil)

	rec, _ := h.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	assert.Equal(t, "fixed-id", rr.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, "5", nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, "5", nil)

	h.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "greenroute_requests_total")
}
