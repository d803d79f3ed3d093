package budget

import (
	"math"
	"time"
)

// RateDecision is the outcome of a rate-limit check.
type RateDecision struct {
	Allowed           bool `json:"allowed"`
	Remaining         int  `json:"remaining"`
	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
}

// rateWindow tracks call timestamps for one source over a sliding
// window. Created lazily on first call; expired entries are pruned on
// each check.
type rateWindow struct {
	window time.Duration
	limit  int
	calls  []time.Time
}

func newRateWindow(window time.Duration, limit int) *rateWindow {
	return &rateWindow{window: window, limit: limit}
}

// check prunes expired calls, then either admits and records the call
// or rejects with the seconds until the oldest call leaves the window.
func (w *rateWindow) check(now time.Time) RateDecision {
	cutoff := now.Add(-w.window)
	kept := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.calls = kept

	if len(w.calls) >= w.limit {
		retry := w.calls[0].Add(w.window).Sub(now)
		return RateDecision{
			Allowed:           false,
			Remaining:         0,
			RetryAfterSeconds: int(math.Ceil(retry.Seconds())),
		}
	}

	w.calls = append(w.calls, now)
	return RateDecision{
		Allowed:   true,
		Remaining: w.limit - len(w.calls),
	}
}
