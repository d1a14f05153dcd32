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

	"github.com/hubizz/hubizz/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertImportFailureRate AlertType = "import_failure_rate"
	AlertFeedFailing       AlertType = "feed_failing"
	AlertCostOverrun       AlertType = "cost_overrun"
	AlertDLQDepth          AlertType = "dlq_depth"
)

// minFinishedImports is the sample size below which the failure rate is not alerted on.
const minFinishedImports = 5

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

	finished := snap.ImportCompleted + snap.ImportFailed
	if finished >= minFinishedImports && snap.ImportFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertImportFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Feed import failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.ImportFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ImportFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.ImportFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.ImportFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if len(snap.FailingFeeds) > 0 {
		ids := make([]int64, 0, len(snap.FailingFeeds))
		for _, f := range snap.FailingFeeds {
			ids = append(ids, f.ID)
		}
		alerts = append(alerts, Alert{
			Type:     AlertFeedFailing,
			Severity: "medium",
			Message:  fmt.Sprintf("%d feed(s) failed %d or more times in a row", len(ids), a.cfg.FeedFailThreshold),
			Details: map[string]any{
				"feed_ids":  ids,
				"threshold": a.cfg.FeedFailThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.GenerationCost > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"AI generation cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.GenerationCost, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.GenerationCost,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"calls":         snap.GenerationCalls,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DLQThreshold > 0 && snap.DLQDepth >= a.cfg.DLQThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDLQDepth,
			Severity: "medium",
			Message:  fmt.Sprintf("Dead letter queue holds %d job(s), threshold %d", snap.DLQDepth, a.cfg.DLQThreshold),
			Details: map[string]any{
				"depth":     snap.DLQDepth,
				"threshold": a.cfg.DLQThreshold,
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
