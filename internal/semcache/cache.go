package semcache

import (
	"context"
	"math"
	"sync/atomic"
)

const (
	// DefaultThreshold is the similarity floor for exploratory retrieval.
	DefaultThreshold = 0.90
	// StrictThreshold is the floor for answer substitution: near-identical
	// phrasing only, so a cached answer is never wrongly substituted.
	StrictThreshold = 0.95
	// DefaultK is the default number of matches returned.
	DefaultK = 5
)

// Match is a retrieved prompt with its similarity to the query.
type Match struct {
	CachedPrompt
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

// Retriever runs threshold-filtered similarity searches over an index.
// The threshold is always an explicit parameter: no instance state is
// swapped around a call, so concurrent lookups are safe.
type Retriever struct {
	index Index
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(index Index) *Retriever {
	return &Retriever{index: index}
}

// Retrieve returns up to k matches with similarity >= threshold, best first.
// The index is over-fetched at 2k so that threshold filtering still has
// enough candidates to fill k slots. Similarity is 1/(1+distance), bounded
// to (0,1].
func (r *Retriever) Retrieve(ctx context.Context, query string, threshold float64, k int, taskType string) ([]Match, error) {
	if k <= 0 {
		k = DefaultK
	}

	neighbors, err := r.index.NearestNeighbors(ctx, query, k*2, taskType)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, n := range neighbors {
		similarity := 1 / (1 + n.Distance)
		if similarity < threshold {
			continue
		}
		matches = append(matches, Match{
			CachedPrompt: n.Prompt,
			Similarity:   round4(similarity),
			Distance:     round4(n.Distance),
		})
		if len(matches) >= k {
			break
		}
	}
	return matches, nil
}

// CachedAnswer returns the single best match at the given threshold, or nil
// when nothing is similar enough. Pass StrictThreshold for answer
// substitution.
func (r *Retriever) CachedAnswer(ctx context.Context, query string, threshold float64) (*Match, error) {
	matches, err := r.Retrieve(ctx, query, threshold, 1, "")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// PromptCache layers hit/miss accounting over a retriever. Counters are
// process-lifetime advisory telemetry; relaxed atomic increments are fine.
type PromptCache struct {
	retriever *Retriever
	threshold float64

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPromptCache creates a cache. A zero threshold uses DefaultThreshold.
func NewPromptCache(retriever *Retriever, threshold float64) *PromptCache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &PromptCache{retriever: retriever, threshold: threshold}
}

// GetOrCompute returns a cached answer when a sufficiently similar prompt
// exists, otherwise invokes compute exactly once. The boolean reports a
// cache hit. Index errors count as misses: the cache must never make the
// pipeline worse than having no cache at all.
func (c *PromptCache) GetOrCompute(ctx context.Context, query string, compute func(ctx context.Context) (string, error)) (string, bool, error) {
	match, err := c.retriever.CachedAnswer(ctx, query, c.threshold)
	if err == nil && match != nil {
		c.hits.Add(1)
		return match.Answer, true, nil
	}

	c.misses.Add(1)
	answer, err := compute(ctx)
	return answer, false, err
}

// Stats is the cumulative hit/miss summary.
type Stats struct {
	Hits           int64   `json:"cache_hits"`
	Misses         int64   `json:"cache_misses"`
	Total          int64   `json:"total_queries"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// Stats returns the counters snapshot. Hit rate is 0 when no queries were
// made; otherwise hits/total*100 rounded to two decimals.
func (c *PromptCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = math.Round(float64(hits)/float64(total)*100*100) / 100
	}
	return Stats{Hits: hits, Misses: misses, Total: total, HitRatePercent: rate}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
