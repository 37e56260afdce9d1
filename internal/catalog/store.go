package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists the model table in SQLite.
//
// The database is opened in WAL mode with a busy timeout and a single-writer
// pool, matching SQLite's concurrency model.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and if needed initializes) the model store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog store path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS model (
		model_id           TEXT PRIMARY KEY,
		model_name         TEXT NOT NULL,
		provider           TEXT NOT NULL,
		complexity_level   INTEGER NOT NULL CHECK (complexity_level BETWEEN 1 AND 10),
		task_type          TEXT NOT NULL DEFAULT 'general',
		co2                REAL NOT NULL DEFAULT 0,
		cost_input_tokens  REAL NOT NULL DEFAULT 0,
		cost_output_tokens REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_model_complexity ON model(complexity_level);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListModels returns all descriptors, ascending by complexity level.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, model_name, provider, complexity_level,
		       task_type, co2, cost_input_tokens, cost_output_tokens
		FROM model
		ORDER BY complexity_level ASC`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []ModelDescriptor
	for rows.Next() {
		var m ModelDescriptor
		var provider string
		if err := rows.Scan(&m.ModelID, &m.Name, &provider, &m.ComplexityLevel,
			&m.TaskType, &m.CO2, &m.CostInputTokens, &m.CostOutputTokens); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		m.Provider = Provider(provider)
		models = append(models, m)
	}
	return models, rows.Err()
}

// UpsertModel inserts or replaces a descriptor. Used by seeding and tests.
func (s *SQLiteStore) UpsertModel(ctx context.Context, m ModelDescriptor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model (model_id, model_name, provider, complexity_level,
		                   task_type, co2, cost_input_tokens, cost_output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			model_name = excluded.model_name,
			provider = excluded.provider,
			complexity_level = excluded.complexity_level,
			task_type = excluded.task_type,
			co2 = excluded.co2,
			cost_input_tokens = excluded.cost_input_tokens,
			cost_output_tokens = excluded.cost_output_tokens`,
		m.ModelID, m.Name, string(m.Provider), m.ComplexityLevel,
		m.TaskType, m.CO2, m.CostInputTokens, m.CostOutputTokens)
	if err != nil {
		return fmt.Errorf("upsert model %q: %w", m.ModelID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
