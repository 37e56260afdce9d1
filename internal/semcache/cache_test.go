package semcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	neighbors []Neighbor
	err       error
}

func (f *fakeIndex) NearestNeighbors(ctx context.Context, query string, k int, taskType string) ([]Neighbor, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.neighbors) > k {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

// distanceFor inverts similarity = 1/(1+d).
func distanceFor(similarity float64) float64 {
	return 1/similarity - 1
}

func TestRetrieveFiltersByThreshold(t *testing.T) {
	idx := &fakeIndex{neighbors: []Neighbor{
		{Prompt: CachedPrompt{PromptID: 1, Prompt: "a", Answer: "A"}, Distance: distanceFor(0.97)},
		{Prompt: CachedPrompt{PromptID: 2, Prompt: "b", Answer: "B"}, Distance: distanceFor(0.92)},
		{Prompt: CachedPrompt{PromptID: 3, Prompt: "c", Answer: "C"}, Distance: distanceFor(0.60)},
	}}
	r := NewRetriever(idx)

	matches, err := r.Retrieve(context.Background(), "q", 0.90, 5, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(1), matches[0].PromptID)
	assert.Equal(t, int64(2), matches[1].PromptID)
}

func TestStrictThresholdRejectsNearMiss(t *testing.T) {
	// Best match at 0.94 similarity: good enough for exploratory lookup,
	// not good enough for answer substitution.
	idx := &fakeIndex{neighbors: []Neighbor{
		{Prompt: CachedPrompt{PromptID: 1, Prompt: "close", Answer: "close answer"}, Distance: distanceFor(0.94)},
	}}
	r := NewRetriever(idx)

	match, err := r.CachedAnswer(context.Background(), "q", StrictThreshold)
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = r.CachedAnswer(context.Background(), "q", DefaultThreshold)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "close answer", match.Answer)
}

func TestRetrieveTruncatesToK(t *testing.T) {
	var neighbors []Neighbor
	for i := 0; i < 8; i++ {
		neighbors = append(neighbors, Neighbor{
			Prompt:   CachedPrompt{PromptID: int64(i)},
			Distance: distanceFor(0.99) + float64(i)*0.0001,
		})
	}
	r := NewRetriever(&fakeIndex{neighbors: neighbors})

	matches, err := r.Retrieve(context.Background(), "q", 0.9, 3, "")
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestRetrievePropagatesIndexError(t *testing.T) {
	r := NewRetriever(&fakeIndex{err: errors.New("embed failed")})

	_, err := r.Retrieve(context.Background(), "q", 0.9, 5, "")
	assert.Error(t, err)
}

func TestGetOrComputeHitSkipsCompute(t *testing.T) {
	idx := &fakeIndex{neighbors: []Neighbor{
		{Prompt: CachedPrompt{Prompt: "q", Answer: "cached"}, Distance: distanceFor(0.99)},
	}}
	c := NewPromptCache(NewRetriever(idx), DefaultThreshold)

	computed := 0
	answer, hit, err := c.GetOrCompute(context.Background(), "q", func(ctx context.Context) (string, error) {
		computed++
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", answer)
	assert.Zero(t, computed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestGetOrComputeMissComputesOnce(t *testing.T) {
	c := NewPromptCache(NewRetriever(&fakeIndex{}), DefaultThreshold)

	computed := 0
	answer, hit, err := c.GetOrCompute(context.Background(), "q", func(ctx context.Context) (string, error) {
		computed++
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", answer)
	assert.Equal(t, 1, computed)
}

func TestGetOrComputeIndexErrorCountsAsMiss(t *testing.T) {
	c := NewPromptCache(NewRetriever(&fakeIndex{err: errors.New("index down")}), DefaultThreshold)

	answer, hit, err := c.GetOrCompute(context.Background(), "q", func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", answer)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestStatsHitRate(t *testing.T) {
	hitIdx := &fakeIndex{neighbors: []Neighbor{
		{Prompt: CachedPrompt{Answer: "cached"}, Distance: 0},
	}}
	c := NewPromptCache(NewRetriever(hitIdx), DefaultThreshold)

	compute := func(ctx context.Context) (string, error) { return "fresh", nil }
	ctx := context.Background()

	c.GetOrCompute(ctx, "a", compute)
	c.GetOrCompute(ctx, "b", compute)

	hitIdx.neighbors = nil
	c.GetOrCompute(ctx, "c", compute)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Total)
	assert.InDelta(t, 66.67, stats.HitRatePercent, 0.001)
}

func TestStatsEmpty(t *testing.T) {
	c := NewPromptCache(NewRetriever(&fakeIndex{}), 0)

	stats := c.Stats()
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.HitRatePercent)
}
