// Package ledger durably records accepted model switches and aggregates the
// cost and CO2 they saved.
//
// DESIGN: Append-only. Records are written once when a user accepts a switch
// suggestion and never updated, only aggregated. Reads default to zero for
// users with no history; writes fail loudly, since a lost savings record must
// not be papered over.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultUserID is used when the caller supplies no user identifier.
const DefaultUserID = "default_user"

// Record is one accepted model switch.
type Record struct {
	ID                 int64     `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	OriginalModelID    string    `json:"original_model_id"`
	OriginalModelName  string    `json:"original_model_name"`
	SuggestedModelID   string    `json:"suggested_model_id"`
	SuggestedModelName string    `json:"suggested_model_name"`
	CostSavedInput     float64   `json:"cost_saved_input"`
	CostSavedOutput    float64   `json:"cost_saved_output"`
	CO2Saved           float64   `json:"co2_saved"`
	ComplexityLevel    int       `json:"complexity_level"`
	QueryPreview       string    `json:"query_preview,omitempty"`
	UserID             string    `json:"user_id"`
}

// Totals is the all-time aggregate for one user.
type Totals struct {
	TotalCostInput  float64 `json:"total_cost_input"`
	TotalCostOutput float64 `json:"total_cost_output"`
	TotalCost       float64 `json:"total_cost"`
	TotalCO2        float64 `json:"total_co2"`
	TotalSwitches   int     `json:"total_switches"`
}

// DailySavings is one calendar day's aggregate.
type DailySavings struct {
	Date           string  `json:"date"` // YYYY-MM-DD
	DailyCostSaved float64 `json:"daily_cost_saved"`
	DailyCO2Saved  float64 `json:"daily_co2_saved"`
	DailySwitches  int     `json:"daily_switches"`
}

// SwitchStat aggregates switches per (original, suggested) model name pair.
type SwitchStat struct {
	OriginalModelName  string  `json:"original_model_name"`
	SuggestedModelName string  `json:"suggested_model_name"`
	SwitchCount        int     `json:"switch_count"`
	TotalCostSaved     float64 `json:"total_cost_saved"`
	TotalCO2Saved      float64 `json:"total_co2_saved"`
}

// Ledger persists savings records in SQLite.
type Ledger struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the savings ledger.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS model_savings (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at           TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		original_model_id    TEXT NOT NULL,
		original_model_name  TEXT NOT NULL,
		suggested_model_id   TEXT NOT NULL,
		suggested_model_name TEXT NOT NULL,
		cost_saved_input     REAL NOT NULL DEFAULT 0,
		cost_saved_output    REAL NOT NULL DEFAULT 0,
		co2_saved            REAL NOT NULL DEFAULT 0,
		complexity_level     INTEGER NOT NULL,
		query_preview        TEXT,
		user_id              TEXT NOT NULL DEFAULT 'default_user'
	);
	CREATE INDEX IF NOT EXISTS idx_savings_user ON model_savings(user_id, created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record appends one accepted switch and returns the assigned ID.
func (l *Ledger) Record(ctx context.Context, rec Record) (int64, error) {
	if rec.UserID == "" {
		rec.UserID = DefaultUserID
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO model_savings (
			original_model_id, original_model_name,
			suggested_model_id, suggested_model_name,
			cost_saved_input, cost_saved_output, co2_saved,
			complexity_level, query_preview, user_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OriginalModelID, rec.OriginalModelName,
		rec.SuggestedModelID, rec.SuggestedModelName,
		rec.CostSavedInput, rec.CostSavedOutput, rec.CO2Saved,
		rec.ComplexityLevel, nullable(rec.QueryPreview), rec.UserID)
	if err != nil {
		return 0, fmt.Errorf("record savings: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record savings: %w", err)
	}
	return id, nil
}

// Totals returns the all-time aggregate for a user. A user with no history
// gets an all-zero struct, never an error.
func (l *Ledger) Totals(ctx context.Context, userID string) (Totals, error) {
	if userID == "" {
		userID = DefaultUserID
	}

	var t Totals
	err := l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(cost_saved_input), 0),
			COALESCE(SUM(cost_saved_output), 0),
			COALESCE(SUM(co2_saved), 0),
			COUNT(*)
		FROM model_savings
		WHERE user_id = ?`, userID).
		Scan(&t.TotalCostInput, &t.TotalCostOutput, &t.TotalCO2, &t.TotalSwitches)
	if err != nil {
		return Totals{}, fmt.Errorf("savings totals: %w", err)
	}
	t.TotalCost = t.TotalCostInput + t.TotalCostOutput
	return t, nil
}

// ByPeriod returns per-day aggregates for the last N days, most recent day
// first. Days without records are omitted.
func (l *Ledger) ByPeriod(ctx context.Context, days int, userID string) ([]DailySavings, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if days <= 0 {
		days = 30
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT
			strftime('%Y-%m-%d', created_at),
			SUM(cost_saved_input + cost_saved_output),
			SUM(co2_saved),
			COUNT(*)
		FROM model_savings
		WHERE user_id = ?
		  AND created_at >= datetime('now', ?)
		GROUP BY strftime('%Y-%m-%d', created_at)
		ORDER BY strftime('%Y-%m-%d', created_at) DESC`,
		userID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("savings by period: %w", err)
	}
	defer rows.Close()

	var out []DailySavings
	for rows.Next() {
		var d DailySavings
		if err := rows.Scan(&d.Date, &d.DailyCostSaved, &d.DailyCO2Saved, &d.DailySwitches); err != nil {
			return nil, fmt.Errorf("scan daily savings: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SwitchStats returns per-(original, suggested) pair aggregates for a user,
// most frequent pair first.
func (l *Ledger) SwitchStats(ctx context.Context, userID string) ([]SwitchStat, error) {
	if userID == "" {
		userID = DefaultUserID
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT
			original_model_name,
			suggested_model_name,
			COUNT(*),
			SUM(cost_saved_input + cost_saved_output),
			SUM(co2_saved)
		FROM model_savings
		WHERE user_id = ?
		GROUP BY original_model_name, suggested_model_name
		ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("switch stats: %w", err)
	}
	defer rows.Close()

	var out []SwitchStat
	for rows.Next() {
		var s SwitchStat
		if err := rows.Scan(&s.OriginalModelName, &s.SuggestedModelName,
			&s.SwitchCount, &s.TotalCostSaved, &s.TotalCO2Saved); err != nil {
			return nil, fmt.Errorf("scan switch stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
