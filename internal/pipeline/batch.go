package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// BatchResult is the aggregate outcome of one batch run.
type BatchResult struct {
	RunID     string                   `json:"run_id"`
	Qualified []*model.ScoredCandidate `json:"qualified"`
	Rejected  []*model.ScoredCandidate `json:"rejected"`
	Metrics   model.RunMetrics         `json:"metrics"`
}

// RunBatch processes candidates under bounded concurrency. Admission
// of new candidates stops once the run is paused, the budget is fully
// utilized, or the qualified-lead cap is reached; work already in
// flight runs to completion. Output ordering is deterministic
// regardless of worker interleaving.
func (p *Pipeline) RunBatch(ctx context.Context, candidates []model.Candidate) (*BatchResult, error) {
	log := zap.L().With(zap.String("run_id", p.runID), zap.Int("candidates", len(candidates)))
	log.Info("batch: starting run")
	start := time.Now()

	var (
		mu        sync.Mutex
		results   []*model.ScoredCandidate
		qualified int
	)
	admitted := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Batch.MaxConcurrency)

	for _, c := range candidates {
		if gCtx.Err() != nil {
			break
		}
		if p.admission.Paused() || p.admission.State().Utilization() >= 1.0 {
			log.Warn("batch: budget exhausted, not admitting further candidates")
			break
		}
		mu.Lock()
		capReached := p.cfg.Batch.MaxResults > 0 && qualified >= p.cfg.Batch.MaxResults
		mu.Unlock()
		if capReached {
			log.Info("batch: qualified-lead cap reached, not admitting further candidates")
			break
		}

		admitted++
		candidate := c
		g.Go(func() error {
			scored := p.Process(gCtx, candidate)
			mu.Lock()
			results = append(results, scored)
			if scored.Breakdown.Qualified {
				qualified++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &BatchResult{RunID: p.runID}
	var confidenceSum float64
	completed := 0
	for _, r := range results {
		if r.State == model.StateCompleted {
			completed++
			confidenceSum += r.Breakdown.FinalScore
		}
		if r.Breakdown.Qualified {
			out.Qualified = append(out.Qualified, r)
		} else {
			out.Rejected = append(out.Rejected, r)
		}
	}
	sortScored(out.Qualified)
	sortScored(out.Rejected)

	state := p.admission.State()
	m := model.RunMetrics{
		Processed:  len(results),
		Qualified:  len(out.Qualified),
		TotalCost:  state.Spent,
		Providers:  p.stats.snapshot(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		if r.State == model.StateFiltered {
			m.Filtered++
		}
	}
	if completed > 0 {
		m.AvgConfidence = confidenceSum / float64(completed)
	}
	if m.Qualified > 0 {
		m.CostPerQualified = m.TotalCost / float64(m.Qualified)
	}
	out.Metrics = m

	log.Info("batch: run complete",
		zap.Int("processed", m.Processed),
		zap.Int("qualified", m.Qualified),
		zap.Int("filtered", m.Filtered),
		zap.Int("not_admitted", len(candidates)-admitted),
		zap.Float64("total_cost", m.TotalCost),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// sortScored orders by final score descending, candidate ID as the
// tiebreak, so batch output is stable across runs.
func sortScored(s []*model.ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Breakdown.FinalScore != s[j].Breakdown.FinalScore {
			return s[i].Breakdown.FinalScore > s[j].Breakdown.FinalScore
		}
		return s[i].Candidate.ID() < s[j].Candidate.ID()
	})
}
