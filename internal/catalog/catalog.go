package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store lists model descriptors from a backing database.
type Store interface {
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
}

// Catalog answers model-selection queries against an in-memory snapshot.
type Catalog struct {
	mu       sync.RWMutex
	models   []ModelDescriptor
	fallback []ModelDescriptor
	store    Store // nil means static-only
	degraded bool  // last refresh served from fallback
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFallback replaces the built-in fallback table, e.g. with descriptors
// loaded from an override file.
func WithFallback(models []ModelDescriptor) Option {
	return func(c *Catalog) {
		if len(models) > 0 {
			c.fallback = models
		}
	}
}

// New creates a catalog and performs the initial load. A nil store serves
// the fallback table directly. Store failures are absorbed here: the catalog
// always comes up, possibly degraded.
func New(ctx context.Context, store Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:    store,
		fallback: builtinModels(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Refresh(ctx)
	return c
}

// Refresh reloads the snapshot from the store. On failure the previous
// snapshot is replaced by the fallback table so that a store outage cannot
// leave stale per-call economics around indefinitely.
func (c *Catalog) Refresh(ctx context.Context) {
	if c.store == nil {
		c.swap(c.fallbackSnapshot(), true)
		return
	}

	models, err := c.store.ListModels(ctx)
	if err != nil || len(models) == 0 {
		if err != nil {
			log.Warn().Err(err).Msg("catalog: store unreachable, serving static fallback")
		}
		c.swap(c.fallbackSnapshot(), true)
		return
	}
	c.swap(models, false)
}

// SetFallback replaces the fallback table (override file hot reload). If the
// catalog is currently degraded the new table takes effect immediately.
func (c *Catalog) SetFallback(models []ModelDescriptor) {
	c.mu.Lock()
	c.fallback = models
	degraded := c.degraded
	c.mu.Unlock()

	if degraded {
		c.swap(c.fallbackSnapshot(), true)
	}
}

// Degraded reports whether the snapshot was served from the static fallback.
func (c *Catalog) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// All returns every descriptor, ascending by complexity level.
func (c *Catalog) All() []ModelDescriptor {
	c.mu.RLock()
	out := make([]ModelDescriptor, len(c.models))
	copy(out, c.models)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ComplexityLevel < out[j].ComplexityLevel
	})
	return out
}

// ByID looks up a descriptor by model ID.
func (c *Catalog) ByID(modelID string) (ModelDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.ModelID == modelID {
			return m, nil
		}
	}
	return ModelDescriptor{}, ErrUnknownModel
}

// MeetingOrExceeding returns every descriptor whose complexity level is at
// least minComplexity. Ordering encodes the selection policy: exact matches
// on the required level come first, then ascending level, then ascending
// input cost, then ascending CO2. The head of the slice is the cheapest
// model that is not over-qualified.
func (c *Catalog) MeetingOrExceeding(minComplexity int) []ModelDescriptor {
	c.mu.RLock()
	var out []ModelDescriptor
	for _, m := range c.models {
		if m.ComplexityLevel >= minComplexity {
			out = append(out, m)
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aExact := a.ComplexityLevel == minComplexity
		bExact := b.ComplexityLevel == minComplexity
		if aExact != bExact {
			return aExact
		}
		if a.ComplexityLevel != b.ComplexityLevel {
			return a.ComplexityLevel < b.ComplexityLevel
		}
		if a.CostInputTokens != b.CostInputTokens {
			return a.CostInputTokens < b.CostInputTokens
		}
		return a.CO2 < b.CO2
	})
	return out
}

// CheaperAlternatives returns models that meet minComplexity and beat the
// current model on input cost or CO2 (either suffices), excluding the
// current model itself, cheapest first.
func (c *Catalog) CheaperAlternatives(currentModelID string, minComplexity int) ([]ModelDescriptor, error) {
	current, err := c.ByID(currentModelID)
	if err != nil {
		return nil, err
	}

	var out []ModelDescriptor
	for _, m := range c.MeetingOrExceeding(minComplexity) {
		if m.ModelID == current.ModelID {
			continue
		}
		if m.CostInputTokens < current.CostInputTokens || m.CO2 < current.CO2 {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CostInputTokens != out[j].CostInputTokens {
			return out[i].CostInputTokens < out[j].CostInputTokens
		}
		return out[i].CO2 < out[j].CO2
	})
	return out, nil
}

func (c *Catalog) fallbackSnapshot() []ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelDescriptor, len(c.fallback))
	copy(out, c.fallback)
	return out
}

func (c *Catalog) swap(models []ModelDescriptor, degraded bool) {
	c.mu.Lock()
	c.models = models
	c.degraded = degraded
	c.mu.Unlock()
}
