package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertHighRiskShare    AlertType = "high_risk_share"
	AlertOverdue90        AlertType = "overdue_90_value"
	AlertAverageRiskScore AlertType = "average_risk_score"
)

// minClientsForShare keeps tiny batches from tripping the share alert.
const minClientsForShare = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	BatchID   string         `json:"batch_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates batch snapshots against configured thresholds and
// posts alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.RetryForAttempts(2)
	retry.OnRetry = resilience.LogRetries("monitoring: webhook", cfg.WebhookURL)
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks each batch in the snapshot and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	for _, b := range snap.Batches {
		alerts = append(alerts, a.EvaluateBatch(b)...)
	}
	return alerts
}

// EvaluateBatch checks one batch against the thresholds.
func (a *Alerter) EvaluateBatch(b BatchSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if b.TotalClients >= minClientsForShare && a.cfg.HighRiskShareThreshold > 0 &&
		b.HighRiskShare > a.cfg.HighRiskShareThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertHighRiskShare,
			Severity: "high",
			BatchID:  b.BatchID,
			Message: fmt.Sprintf(
				"%.1f%% of clients are high risk, above threshold %.1f%% (%d of %d, %s of AR)",
				b.HighRiskShare*100, a.cfg.HighRiskShareThreshold*100,
				b.HighRisk, b.TotalClients, portfolio.FormatCurrency(b.HighRiskValue),
			),
			Details: map[string]any{
				"high_risk":       b.HighRisk,
				"total_clients":   b.TotalClients,
				"high_risk_share": b.HighRiskShare,
				"threshold":       a.cfg.HighRiskShareThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.Overdue90ThresholdUSD > 0 &&
		b.Overdue90Value.GreaterThan(decimal.NewFromFloat(a.cfg.Overdue90ThresholdUSD)) {
		alerts = append(alerts, Alert{
			Type:     AlertOverdue90,
			Severity: "high",
			BatchID:  b.BatchID,
			Message: fmt.Sprintf(
				"%s is 90+ days overdue across %d clients, above threshold %s",
				portfolio.FormatCurrency(b.Overdue90Value), b.Overdue90,
				portfolio.FormatCurrency(decimal.NewFromFloat(a.cfg.Overdue90ThresholdUSD)),
			),
			Details: map[string]any{
				"overdue_90":       b.Overdue90,
				"overdue_90_value": b.Overdue90Value.StringFixed(2),
				"threshold_usd":    a.cfg.Overdue90ThresholdUSD,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AverageScoreThreshold > 0 && b.TotalClients > 0 &&
		b.AverageScore >= a.cfg.AverageScoreThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAverageRiskScore,
			Severity: "medium",
			BatchID:  b.BatchID,
			Message: fmt.Sprintf(
				"Average risk score %d/100 reached threshold %d (%d clients)",
				b.AverageScore, a.cfg.AverageScoreThreshold, b.TotalClients,
			),
			Details: map[string]any{
				"average_score": b.AverageScore,
				"threshold":     a.cfg.AverageScoreThreshold,
			},
			Timestamp: now,
		})
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
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("batch_id", alert.BatchID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("batch_id", alert.BatchID),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL. 5xx and 429
// responses are returned as transient so SendAlerts retries them.
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
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
