package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Pool abstracts the pgx connection pool so tests can substitute a mock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the ledger hot path.
var preparedStatements = map[string]string{
	"append_cost_entry": `INSERT INTO cost_ledger (id, run_id, source, estimated_cost, actual_cost, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"load_budget_state": `SELECT source, SUM(COALESCE(actual_cost, estimated_cost)) FROM cost_ledger WHERE run_id = $1 GROUP BY source`,
	"get_run":           `SELECT id, started_at, completed_at, config, metrics FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	config       JSONB,
	metrics      JSONB
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	source         TEXT NOT NULL,
	estimated_cost DOUBLE PRECISION NOT NULL,
	actual_cost    DOUBLE PRECISION,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scored_leads (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	state        TEXT NOT NULL,
	qualified    BOOLEAN NOT NULL DEFAULT false,
	final_score  DOUBLE PRECISION NOT NULL,
	tier         TEXT NOT NULL,
	detail       JSONB NOT NULL,
	cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cost_ledger_run_id ON cost_ledger(run_id);
CREATE INDEX IF NOT EXISTS idx_cost_ledger_source ON cost_ledger(run_id, source);
CREATE INDEX IF NOT EXISTS idx_scored_leads_run_id ON scored_leads(run_id);
CREATE INDEX IF NOT EXISTS idx_scored_leads_qualified ON scored_leads(run_id, qualified);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, runID string, configSnapshot []byte) (*model.Run, error) {
	now := time.Now().UTC()
	var cfg any
	if len(configSnapshot) > 0 {
		cfg = string(configSnapshot)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at, config) VALUES ($1, $2, $3)`,
		runID, now, cfg,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run %s", runID)
	}
	return &model.Run{ID: runID, StartedAt: now, Config: configSnapshot}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, metrics *model.RunMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET completed_at = $1, metrics = $2 WHERE id = $3`,
		time.Now().UTC(), string(metricsJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, started_at, completed_at, config, metrics FROM runs WHERE id = $1`,
		runID,
	)

	var r model.Run
	var configJSON, metricsJSON []byte
	err := row.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &configJSON, &metricsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	if len(configJSON) > 0 {
		r.Config = json.RawMessage(configJSON)
	}
	if len(metricsJSON) > 0 {
		r.Metrics = &model.RunMetrics{}
		if err := json.Unmarshal(metricsJSON, r.Metrics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal metrics")
		}
	}
	return &r, nil
}

// LoadBudgetState reconstructs per-source spend from the run's ledger.
// A run with no ledger entries yields nil, not an empty state.
func (s *PostgresStore) LoadBudgetState(ctx context.Context, runID string) (*model.BudgetState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, SUM(COALESCE(actual_cost, estimated_cost)) FROM cost_ledger WHERE run_id = $1 GROUP BY source`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load budget state")
	}
	defer rows.Close()

	state := &model.BudgetState{SpentBySource: make(map[string]float64)}
	found := false
	for rows.Next() {
		var source string
		var spent float64
		if err := rows.Scan(&source, &spent); err != nil {
			return nil, eris.Wrap(err, "postgres: scan budget state")
		}
		state.SpentBySource[source] = spent
		state.Spent += spent
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load budget state iterate")
	}
	if !found {
		return nil, nil
	}
	return state, nil
}

func (s *PostgresStore) AppendCostEntry(ctx context.Context, entry model.CostLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_ledger (id, run_id, source, estimated_cost, actual_cost, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.RunID, entry.Source, entry.EstimatedCost, entry.ActualCost, entry.Timestamp,
	)
	return eris.Wrapf(err, "postgres: append cost entry for run %s", entry.RunID)
}

func (s *PostgresStore) ListCostEntries(ctx context.Context, runID string) ([]model.CostLedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, source, estimated_cost, actual_cost, created_at
		 FROM cost_ledger WHERE run_id = $1 ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cost entries")
	}
	defer rows.Close()

	var entries []model.CostLedgerEntry
	for rows.Next() {
		var e model.CostLedgerEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.EstimatedCost, &e.ActualCost, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list cost entries iterate")
}

func (s *PostgresStore) SaveScored(ctx context.Context, runID string, leads []*model.ScoredCandidate) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save scored")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, lead := range leads {
		detail, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal scored lead")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO scored_leads (id, run_id, candidate_id, state, qualified, final_score, tier, detail, cost, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), runID, lead.Candidate.ID(), string(lead.State), lead.Breakdown.Qualified,
			lead.Breakdown.FinalScore, string(lead.Breakdown.Tier), string(detail), lead.ProcessingCost, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert scored lead %s", lead.Candidate.ID())
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save scored")
}
