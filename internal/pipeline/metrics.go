package pipeline

import (
	"sync"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// statTracker counts provider calls and hits across concurrent
// workers. Spend is ledgered by the admission controller, not here.
type statTracker struct {
	mu    sync.Mutex
	stats map[string]model.ProviderStats
}

func newStatTracker() *statTracker {
	return &statTracker{stats: make(map[string]model.ProviderStats)}
}

func (t *statTracker) call(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats[source]
	s.Calls++
	t.stats[source] = s
}

func (t *statTracker) hit(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats[source]
	s.Hits++
	t.stats[source] = s
}

// snapshot copies the counters for run metrics.
func (t *statTracker) snapshot() map[string]model.ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.ProviderStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = v
	}
	return out
}
