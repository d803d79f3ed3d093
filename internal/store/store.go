// Package store persists runs, scored leads and the cost ledger.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Store defines the persistence interface for the qualification
// pipeline. It is a superset of the admission controller's backend
// interface, so any Store can hydrate and persist budget state.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, runID string, configSnapshot []byte) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, metrics *model.RunMetrics) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Cost ledger
	LoadBudgetState(ctx context.Context, runID string) (*model.BudgetState, error)
	AppendCostEntry(ctx context.Context, entry model.CostLedgerEntry) error
	ListCostEntries(ctx context.Context, runID string) ([]model.CostLedgerEntry, error)

	// Scored leads
	SaveScored(ctx context.Context, runID string, leads []*model.ScoredCandidate) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store for the configured driver. An empty driver
// means persistence is disabled and the run is in-memory only.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
