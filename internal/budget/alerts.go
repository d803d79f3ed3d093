package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/config"
)

// Severity orders budget alerts from warning up to emergency.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	case SeverityEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// Alert is a single budget threshold breach.
type Alert struct {
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter delivers budget alerts via log and optional webhook.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given alert config.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// severityFor maps a utilization fraction onto the highest breached
// threshold.
func (a *Alerter) severityFor(utilization float64) Severity {
	switch {
	case utilization >= a.cfg.EmergencyPct:
		return SeverityEmergency
	case utilization >= a.cfg.CriticalPct:
		return SeverityCritical
	case utilization >= a.cfg.WarningPct:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// emit builds and delivers one alert at the given severity.
func (a *Alerter) emit(ctx context.Context, sev Severity, runID string, utilization, spent, total float64) Alert {
	alert := Alert{
		Severity: sev.String(),
		Message: fmt.Sprintf("budget utilization %.1f%% ($%.2f of $%.2f)",
			utilization*100, spent, total),
		Details: map[string]any{
			"run_id":      runID,
			"utilization": utilization,
			"spent_usd":   spent,
			"budget_usd":  total,
		},
		Timestamp: time.Now().UTC(),
	}

	zap.L().Warn("budget: alert",
		zap.String("severity", alert.Severity),
		zap.String("run_id", runID),
		zap.Float64("utilization", utilization),
	)

	if a.cfg.WebhookURL != "" {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("budget: failed to send alert webhook",
				zap.String("severity", alert.Severity),
				zap.Error(err),
			)
		}
	}
	return alert
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "budget: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "budget: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "budget: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("budget: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
