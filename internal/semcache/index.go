// Package semcache answers queries from previously answered prompts found by
// semantic similarity, short-circuiting model invocation entirely.
//
// DESIGN: The nearest-neighbor index is a collaborator behind the Index
// interface. The bundled implementation keeps prompt embeddings in SQLite
// and scans them brute-force; the corpus is seeded offline and read-only at
// serving time, so a linear scan over a few thousand vectors is fine.
// Construction fails closed when the index is unreachable; callers degrade
// to "always miss" rather than crash.
package semcache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// CachedPrompt is one previously answered prompt. Read-only at serving time.
type CachedPrompt struct {
	PromptID int64  `json:"prompt_id"`
	Prompt   string `json:"prompt"`
	TaskType string `json:"task_type"`
	Answer   string `json:"answer"`
}

// Neighbor is a candidate returned by a nearest-neighbor search.
type Neighbor struct {
	Prompt   CachedPrompt
	Distance float64
}

// Index finds the stored prompts closest to a query.
type Index interface {
	// NearestNeighbors returns up to k candidates ascending by distance.
	// An empty taskType matches all task types.
	NearestNeighbors(ctx context.Context, query string, k int, taskType string) ([]Neighbor, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SQLiteIndex is an Index over embeddings persisted in SQLite.
type SQLiteIndex struct {
	db       *sql.DB
	embedder Embedder
}

// OpenSQLiteIndex opens the prompt index. Fails when the database cannot be
// opened or the schema cannot be verified.
func OpenSQLiteIndex(path string, embedder Embedder) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("index path cannot be empty")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d",
		path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open prompt index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &SQLiteIndex{db: db, embedder: embedder}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init prompt index schema: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prompts (
		prompt_id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt    TEXT NOT NULL,
		task_type TEXT NOT NULL DEFAULT 'unknown',
		answer    TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prompts_task_type ON prompts(task_type);
	`
	_, err := idx.db.Exec(schema)
	return err
}

// Add stores a prompt with its embedding. Used by the offline corpus build
// and by tests; the serving path never writes.
func (idx *SQLiteIndex) Add(ctx context.Context, prompt, taskType, answer string) (int64, error) {
	vec, err := idx.embedder.Embed(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("embed prompt: %w", err)
	}

	res, err := idx.db.ExecContext(ctx,
		`INSERT INTO prompts (prompt, task_type, answer, embedding) VALUES (?, ?, ?, ?)`,
		prompt, taskType, answer, encodeVector(vec))
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}
	return res.LastInsertId()
}

// Count returns the number of stored prompts.
func (idx *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&n)
	return n, err
}

// NearestNeighbors embeds the query and scans stored vectors, returning the
// k closest by Euclidean distance.
func (idx *SQLiteIndex) NearestNeighbors(ctx context.Context, query string, k int, taskType string) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	q := `SELECT prompt_id, prompt, task_type, answer, embedding FROM prompts`
	args := []any{}
	if taskType != "" {
		q += ` WHERE task_type = ?`
		args = append(args, taskType)
	}

	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var p CachedPrompt
		var blob []byte
		if err := rows.Scan(&p.PromptID, &p.Prompt, &p.TaskType, &p.Answer, &blob); err != nil {
			return nil, fmt.Errorf("scan prompt row: %w", err)
		}
		vec := decodeVector(blob)
		if len(vec) != len(queryVec) {
			continue // embedding model changed under us, skip stale rows
		}
		neighbors = append(neighbors, Neighbor{Prompt: p, Distance: euclidean(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Close closes the underlying database.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
