package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/config"
	"github.com/sells-group/contact-migrator/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed       AlertType = "run_failed"
	AlertContactFailRate AlertType = "contact_failure_rate"
	AlertStalledRun      AlertType = "stalled_run"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Status against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the status against thresholds and returns any alerts.
func (a *Alerter) Evaluate(st *Status) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	// Most recent run failed outright.
	if len(st.Runs) > 0 && st.Runs[0].Status == model.RunStatusFailed {
		last := st.Runs[0]
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message:  fmt.Sprintf("Migration run %s failed: %s", last.ID, last.Error),
			Details: map[string]any{
				"run_id": last.ID,
				"source": last.Source,
			},
			Timestamp: now,
		})
	}

	// Per-contact failure rate of the most recent completed run.
	for _, r := range st.Runs {
		if r.Status != model.RunStatusComplete || r.Summary == nil {
			continue
		}
		attempted := r.Summary.Processed + r.Summary.Failed
		if attempted == 0 {
			break
		}
		rate := float64(r.Summary.Failed) / float64(attempted)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertContactFailRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Contact failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted)",
					rate*100, a.cfg.FailureRateThreshold*100, r.Summary.Failed, attempted,
				),
				Details: map[string]any{
					"run_id":       r.ID,
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failure_path": r.Summary.FailurePath,
				},
				Timestamp: now,
			})
		}
		break
	}

	// Checkpoint not updated recently.
	if cp := st.Checkpoint; cp != nil && a.cfg.StallMinutes > 0 {
		idle := now.Sub(cp.LastUpdate)
		if idle > time.Duration(a.cfg.StallMinutes)*time.Minute {
			alerts = append(alerts, Alert{
				Type:     AlertStalledRun,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Migration checkpoint at %d/%d has not advanced for %s",
					cp.Processed, cp.Total, idle.Truncate(time.Second),
				),
				Details: map[string]any{
					"processed": cp.Processed,
					"total":     cp.Total,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
