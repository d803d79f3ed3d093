package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	config       TEXT,
	metrics      TEXT
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	source         TEXT NOT NULL,
	estimated_cost REAL NOT NULL,
	actual_cost    REAL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scored_leads (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	state        TEXT NOT NULL,
	qualified    INTEGER NOT NULL DEFAULT 0,
	final_score  REAL NOT NULL,
	tier         TEXT NOT NULL,
	detail       TEXT NOT NULL,
	cost         REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cost_ledger_run_id ON cost_ledger(run_id);
CREATE INDEX IF NOT EXISTS idx_cost_ledger_source ON cost_ledger(run_id, source);
CREATE INDEX IF NOT EXISTS idx_scored_leads_run_id ON scored_leads(run_id);
CREATE INDEX IF NOT EXISTS idx_scored_leads_qualified ON scored_leads(run_id, qualified);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, runID string, configSnapshot []byte) (*model.Run, error) {
	now := time.Now().UTC()
	var cfg any
	if len(configSnapshot) > 0 {
		cfg = string(configSnapshot)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, config) VALUES (?, ?, ?)`,
		runID, now, cfg,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run %s", runID)
	}
	return &model.Run{ID: runID, StartedAt: now, Config: configSnapshot}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, metrics *model.RunMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ?, metrics = ? WHERE id = ?`,
		time.Now().UTC(), string(metricsJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, completed_at, config, metrics FROM runs WHERE id = ?`,
		runID,
	)

	var r model.Run
	var completedAt sql.NullTime
	var configJSON, metricsJSON sql.NullString
	err := row.Scan(&r.ID, &r.StartedAt, &completedAt, &configJSON, &metricsJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if configJSON.Valid {
		r.Config = json.RawMessage(configJSON.String)
	}
	if metricsJSON.Valid {
		r.Metrics = &model.RunMetrics{}
		if err := json.Unmarshal([]byte(metricsJSON.String), r.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
		}
	}
	return &r, nil
}

// LoadBudgetState reconstructs per-source spend from the run's ledger.
// A run with no ledger entries yields nil, not an empty state.
func (s *SQLiteStore) LoadBudgetState(ctx context.Context, runID string) (*model.BudgetState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, SUM(COALESCE(actual_cost, estimated_cost))
		 FROM cost_ledger WHERE run_id = ? GROUP BY source`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load budget state")
	}
	defer rows.Close()

	state := &model.BudgetState{SpentBySource: make(map[string]float64)}
	found := false
	for rows.Next() {
		var source string
		var spent float64
		if err := rows.Scan(&source, &spent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan budget state")
		}
		state.SpentBySource[source] = spent
		state.Spent += spent
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load budget state iterate")
	}
	if !found {
		return nil, nil
	}
	return state, nil
}

func (s *SQLiteStore) AppendCostEntry(ctx context.Context, entry model.CostLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var actual any
	if entry.ActualCost != nil {
		actual = *entry.ActualCost
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_ledger (id, run_id, source, estimated_cost, actual_cost, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Source, entry.EstimatedCost, actual, entry.Timestamp,
	)
	return eris.Wrapf(err, "sqlite: append cost entry for run %s", entry.RunID)
}

func (s *SQLiteStore) ListCostEntries(ctx context.Context, runID string) ([]model.CostLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, estimated_cost, actual_cost, created_at
		 FROM cost_ledger WHERE run_id = ? ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cost entries")
	}
	defer rows.Close()

	var entries []model.CostLedgerEntry
	for rows.Next() {
		var e model.CostLedgerEntry
		var actual sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.EstimatedCost, &actual, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost entry")
		}
		if actual.Valid {
			v := actual.Float64
			e.ActualCost = &v
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list cost entries iterate")
}

func (s *SQLiteStore) SaveScored(ctx context.Context, runID string, leads []*model.ScoredCandidate) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save scored")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, lead := range leads {
		detail, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal scored lead")
		}
		qualified := 0
		if lead.Breakdown.Qualified {
			qualified = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scored_leads (id, run_id, candidate_id, state, qualified, final_score, tier, detail, cost, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, lead.Candidate.ID(), string(lead.State), qualified,
			lead.Breakdown.FinalScore, string(lead.Breakdown.Tier), string(detail), lead.ProcessingCost, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert scored lead %s", lead.Candidate.ID())
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save scored")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
