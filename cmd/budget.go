package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/store"
)

var budgetRunID string

// budgetStatus is the report printed by the budget command.
type budgetStatus struct {
	Run           *model.Run              `json:"run"`
	TotalBudget   float64                 `json:"total_budget"`
	Spent         float64                 `json:"spent"`
	Utilization   float64                 `json:"utilization"`
	SpentBySource map[string]float64      `json:"spent_by_source"`
	Entries       []model.CostLedgerEntry `json:"entries"`
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the cost ledger and budget utilization for a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		if st == nil {
			return eris.New("budget status requires a persistence backend (set store.driver)")
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, budgetRunID)
		if err != nil {
			return err
		}
		entries, err := st.ListCostEntries(ctx, budgetRunID)
		if err != nil {
			return err
		}

		status := budgetStatus{
			Run:           run,
			TotalBudget:   cfg.Budget.TotalUSD,
			SpentBySource: make(map[string]float64),
			Entries:       entries,
		}
		for _, e := range entries {
			cost := e.Cost()
			status.Spent += cost
			status.SpentBySource[e.Source] += cost
		}
		if status.TotalBudget > 0 {
			status.Utilization = status.Spent / status.TotalBudget
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	budgetCmd.Flags().StringVar(&budgetRunID, "run", "", "run ID (required)")
	_ = budgetCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(budgetCmd)
}
