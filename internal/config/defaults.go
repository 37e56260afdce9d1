// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: Defaults that appear in more than one place are defined here so
// they stay auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the HTTP listen port.
const DefaultPort = 8000

// DefaultReadTimeout for the HTTP server.
const DefaultReadTimeout = 30 * time.Second

// DefaultWriteTimeout for the HTTP server. Generous: a chat completion can
// take the full upstream round trip.
const DefaultWriteTimeout = 5 * time.Minute

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// MaxRequestBodySize is the maximum allowed request body (2MB). Chat
// payloads are text; anything bigger is abuse.
const MaxRequestBodySize = 2 * 1024 * 1024

// =============================================================================
// STORAGE
// =============================================================================

// DefaultCatalogDBPath is the model catalog database file.
const DefaultCatalogDBPath = "greenroute.db"

// DefaultLedgerDBPath is the savings ledger database file. Shares the
// catalog file by default; both stores create their own tables.
const DefaultLedgerDBPath = "greenroute.db"

// DefaultPromptIndexPath is the semantic cache index file.
const DefaultPromptIndexPath = "prompts.db"

// DefaultCatalogRefreshSpec is the cron spec for reloading the catalog
// snapshot from the backing store.
const DefaultCatalogRefreshSpec = "@every 5m"

// =============================================================================
// SCORING AND SELECTION
// =============================================================================

// DefaultGraderModel is the cheap model used for complexity grading.
const DefaultGraderModel = "gpt-4o-mini"

// DefaultQueryPreviewLen bounds the query excerpt stored with a savings
// record.
const DefaultQueryPreviewLen = 100

// =============================================================================
// SEMANTIC CACHE
// =============================================================================

// DefaultCacheLookupThreshold is the similarity floor for the exploratory
// /cache/lookup endpoint (looser than answer substitution).
const DefaultCacheLookupThreshold = 0.8

// =============================================================================
// STATS FEED
// =============================================================================

// DefaultStatsPushInterval is how often /ws/stats pushes a snapshot.
const DefaultStatsPushInterval = 2 * time.Second
