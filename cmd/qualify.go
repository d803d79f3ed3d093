package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/pipeline"
	"github.com/sells-group/lead-qualifier/internal/provider"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/internal/store"
)

var (
	qualifyInput  string
	qualifyOutput string
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Qualify a batch of candidate businesses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		candidates, err := loadCandidates(qualifyInput)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		runID := uuid.New().String()
		if st != nil {
			snapshot, err := json.Marshal(cfg)
			if err != nil {
				return eris.Wrap(err, "marshal config snapshot")
			}
			if _, err := st.CreateRun(ctx, runID, snapshot); err != nil {
				return eris.Wrap(err, "create run")
			}
		}

		table := scoring.DefaultTable()
		if cfg.Scoring.TablePath != "" {
			table, err = scoring.LoadTable(cfg.Scoring.TablePath)
			if err != nil {
				return eris.Wrap(err, "load scoring table")
			}
		}
		engine := scoring.NewEngine(table, cfg.Pipeline.QualityThreshold)

		opts := []budget.Option{}
		if st != nil {
			opts = append(opts, budget.WithStore(st))
		}
		admission := budget.NewController(runID, cfg.Budget, cfg.RateLimit, cfg.Alerts, opts...)
		admission.Load(ctx)

		providers := provider.NewRegistry()
		providers.SetProbe(provider.NewHTTPProbe(
			time.Duration(cfg.Providers.ProbeTimeoutSecs)*time.Second,
			cfg.Providers.ProbePerSecond,
		))

		p := pipeline.New(cfg, providers, admission, engine, runID)
		result, err := p.RunBatch(ctx, candidates)
		if err != nil {
			return eris.Wrap(err, "batch run")
		}

		if st != nil {
			all := append(append([]*model.ScoredCandidate{}, result.Qualified...), result.Rejected...)
			if err := st.SaveScored(ctx, runID, all); err != nil {
				return eris.Wrap(err, "save scored leads")
			}
			if err := st.CompleteRun(ctx, runID, &result.Metrics); err != nil {
				return eris.Wrap(err, "complete run")
			}
		}

		zap.L().Info("qualification complete",
			zap.String("run_id", runID),
			zap.Int("qualified", result.Metrics.Qualified),
			zap.Int("processed", result.Metrics.Processed),
			zap.Float64("total_cost", result.Metrics.TotalCost),
		)

		return writeResult(qualifyOutput, result)
	},
}

func loadCandidates(path string) ([]model.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open candidates file %s", path)
	}
	defer f.Close() //nolint:errcheck

	var candidates []model.Candidate
	if err := json.NewDecoder(f).Decode(&candidates); err != nil {
		return nil, eris.Wrap(err, "decode candidates")
	}
	if len(candidates) == 0 {
		return nil, eris.New("candidates file is empty")
	}
	return candidates, nil
}

func writeResult(path string, result *pipeline.BatchResult) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create output file %s", path)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	qualifyCmd.Flags().StringVar(&qualifyInput, "input", "", "path to candidates JSON file (required)")
	qualifyCmd.Flags().StringVar(&qualifyOutput, "output", "", "path for the result JSON (default stdout)")
	_ = qualifyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(qualifyCmd)
}
