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

	"github.com/tainan-eats/storedir/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate     AlertType = "failure_rate"
	AlertStrategyFailure AlertType = "strategy_failure"
	AlertMassRetirement  AlertType = "mass_retirement"
	AlertStaleCatalog    AlertType = "stale_catalog"
)

// minProcessed is the sample size below which the failure rate is ignored.
const minProcessed = 20

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Processed >= minProcessed && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Store failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, snap.Processed, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"failed":    snap.Failed,
				"processed": snap.Processed,
			},
			Timestamp: now,
		})
	}

	if snap.StrategyErrors > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStrategyFailure,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d acquisition strateg(ies) failed across %d run(s) in last %dh",
				snap.StrategyErrors, snap.Runs, snap.LookbackHours,
			),
			Details: map[string]any{
				"strategy_errors": snap.StrategyErrors,
				"runs":            snap.Runs,
			},
			Timestamp: now,
		})
	}

	if a.cfg.RetireThreshold > 0 && snap.Retired > a.cfg.RetireThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertMassRetirement,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d stores retired in last %dh, threshold %d",
				snap.Retired, snap.LookbackHours, a.cfg.RetireThreshold,
			),
			Details: map[string]any{
				"retired":   snap.Retired,
				"threshold": a.cfg.RetireThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleHours > 0 && !snap.CollectedAt.IsZero() {
		age := snap.CollectedAt.Sub(snap.LastRunAt)
		if snap.LastRunAt.IsZero() || age > time.Duration(a.cfg.StaleHours)*time.Hour {
			msg := "No ingestion run has ever been recorded"
			if !snap.LastRunAt.IsZero() {
				msg = fmt.Sprintf("Last ingestion run started %s ago, threshold %dh",
					age.Round(time.Minute), a.cfg.StaleHours)
			}
			alerts = append(alerts, Alert{
				Type:     AlertStaleCatalog,
				Severity: "medium",
				Message:  msg,
				Details: map[string]any{
					"last_run_at": snap.LastRunAt,
					"stale_hours": a.cfg.StaleHours,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Without a URL
// alerts are logged at Warn. Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if len(alerts) == 0 {
		return 0
	}
	if a.cfg.WebhookURL == "" {
		for _, alert := range alerts {
			zap.L().Warn("monitoring: alert",
				zap.String("type", string(alert.Type)),
				zap.String("message", alert.Message),
			)
		}
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
