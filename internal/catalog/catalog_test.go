package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	models []ModelDescriptor
	err    error
}

func (f *fakeStore) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	return f.models, f.err
}

func testModels() []ModelDescriptor {
	return []ModelDescriptor{
		{ModelID: "cheap-small", Name: "Cheap Small", Provider: ProviderGroq, ComplexityLevel: 2, CostInputTokens: 0.05, CostOutputTokens: 0.10, CO2: 0.1},
		{ModelID: "mid-a", Name: "Mid A", Provider: ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 0.50, CostOutputTokens: 1.50, CO2: 0.5},
		{ModelID: "mid-b", Name: "Mid B", Provider: ProviderAnthropic, ComplexityLevel: 5, CostInputTokens: 0.25, CostOutputTokens: 1.25, CO2: 0.8},
		{ModelID: "big", Name: "Big", Provider: ProviderAnthropic, ComplexityLevel: 7, CostInputTokens: 3.00, CostOutputTokens: 15.00, CO2: 2.0},
		{ModelID: "huge", Name: "Huge", Provider: ProviderBedrock, ComplexityLevel: 10, CostInputTokens: 15.00, CostOutputTokens: 75.00, CO2: 5.0},
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return New(context.Background(), &fakeStore{models: testModels()})
}

func TestMeetingOrExceedingExactMatchFirst(t *testing.T) {
	cat := newTestCatalog(t)

	got := cat.MeetingOrExceeding(5)
	require.Len(t, got, 4)

	// Exact level matches lead, cheapest input cost first.
	assert.Equal(t, "mid-b", got[0].ModelID)
	assert.Equal(t, "mid-a", got[1].ModelID)
	assert.Equal(t, "big", got[2].ModelID)
	assert.Equal(t, "huge", got[3].ModelID)
}

func TestMeetingOrExceedingNoExactMatch(t *testing.T) {
	cat := newTestCatalog(t)

	got := cat.MeetingOrExceeding(6)
	require.Len(t, got, 2)
	assert.Equal(t, "big", got[0].ModelID)
	assert.Equal(t, "huge", got[1].ModelID)
}

func TestMeetingOrExceedingNothingQualifies(t *testing.T) {
	cat := New(context.Background(), &fakeStore{models: []ModelDescriptor{
		{ModelID: "only", Name: "Only", Provider: ProviderOpenAI, ComplexityLevel: 3, CostInputTokens: 1, CO2: 1},
	}})

	assert.Empty(t, cat.MeetingOrExceeding(9))
}

func TestCheaperAlternatives(t *testing.T) {
	cat := newTestCatalog(t)

	got, err := cat.CheaperAlternatives("big", 5)
	require.NoError(t, err)

	// Both mid models beat "big" on cost; "big" itself and the strictly
	// worse "huge" are excluded.
	require.Len(t, got, 2)
	assert.Equal(t, "mid-b", got[0].ModelID)
	assert.Equal(t, "mid-a", got[1].ModelID)
}

func TestCheaperAlternativesEitherAxisSuffices(t *testing.T) {
	cat := New(context.Background(), &fakeStore{models: []ModelDescriptor{
		{ModelID: "current", Name: "Current", Provider: ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 1.0, CO2: 1.0},
		{ModelID: "cheaper-dirtier", Name: "CD", Provider: ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 0.5, CO2: 2.0},
		{ModelID: "pricier-cleaner", Name: "PC", Provider: ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 2.0, CO2: 0.5},
		{ModelID: "strictly-worse", Name: "SW", Provider: ProviderOpenAI, ComplexityLevel: 5, CostInputTokens: 2.0, CO2: 2.0},
	}})

	got, err := cat.CheaperAlternatives("current", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cheaper-dirtier", got[0].ModelID)
	assert.Equal(t, "pricier-cleaner", got[1].ModelID)
}

func TestCheaperAlternativesUnknownModel(t *testing.T) {
	cat := newTestCatalog(t)

	_, err := cat.CheaperAlternatives("nope", 5)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestByID(t *testing.T) {
	cat := newTestCatalog(t)

	m, err := cat.ByID("mid-a")
	require.NoError(t, err)
	assert.Equal(t, "Mid A", m.Name)

	_, err = cat.ByID("missing")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestStoreFailureFallsBackToBuiltins(t *testing.T) {
	cat := New(context.Background(), &fakeStore{err: errors.New("db locked")})

	assert.True(t, cat.Degraded())
	all := cat.All()
	require.NotEmpty(t, all)
	for _, m := range all {
		assert.True(t, m.ZeroEconomics(), "builtin %s should carry no economics", m.ModelID)
	}
}

func TestRefreshRecoversFromOutage(t *testing.T) {
	store := &fakeStore{err: errors.New("down")}
	cat := New(context.Background(), store)
	require.True(t, cat.Degraded())

	store.err = nil
	store.models = testModels()
	cat.Refresh(context.Background())

	assert.False(t, cat.Degraded())
	assert.Len(t, cat.All(), len(testModels()))
}

func TestSetFallbackTakesEffectWhileDegraded(t *testing.T) {
	cat := New(context.Background(), &fakeStore{err: errors.New("down")})
	require.True(t, cat.Degraded())

	override := []ModelDescriptor{
		{ModelID: "override-only", Name: "Override", Provider: ProviderOpenAI, ComplexityLevel: 4},
	}
	cat.SetFallback(override)

	all := cat.All()
	require.Len(t, all, 1)
	assert.Equal(t, "override-only", all[0].ModelID)
}

func TestAllSortedByComplexity(t *testing.T) {
	cat := newTestCatalog(t)

	all := cat.All()
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].ComplexityLevel, all[i].ComplexityLevel)
	}
}

func TestValidate(t *testing.T) {
	valid := ModelDescriptor{ModelID: "m", Name: "M", Provider: ProviderOpenAI, ComplexityLevel: 5}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.ComplexityLevel = 11
	assert.Error(t, bad.Validate())

	bad = valid
	bad.ModelID = ""
	assert.Error(t, bad.Validate())

	bad = valid
	bad.CostInputTokens = -1
	assert.Error(t, bad.Validate())
}
