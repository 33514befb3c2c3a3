package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/config"
	"github.com/sells-group/company-search/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCircuitOpen      AlertType = "circuit_open"
	AlertCircuitRecovered AlertType = "circuit_recovered"
	AlertNoProviders      AlertType = "no_healthy_providers"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Provider  string         `json:"provider,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter compares consecutive health snapshots and sends alerts via
// webhook on transitions.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
			OnRetry:        resilience.RetryLogger("webhook", "alert"),
		},
	}
}

// Evaluate returns the alerts implied by moving from prev to cur. A nil prev
// is treated as every circuit closed with search healthy, so circuits already
// open at the first check are reported.
func (a *Alerter) Evaluate(prev, cur *HealthSnapshot) []Alert {
	var alerts []Alert
	now := cur.CollectedAt

	for _, p := range cur.Providers {
		before, ok := prev.Lookup(p.Provider)
		wasClosed := !ok || before.Status == resilience.CircuitClosed
		isClosed := p.Status == resilience.CircuitClosed

		switch {
		case wasClosed && !isClosed:
			details := map[string]any{
				"consecutive_failures": p.ConsecutiveFailures,
				"status":               p.Status.String(),
			}
			if p.LastFailureAt != nil {
				details["last_failure_at"] = p.LastFailureAt.UTC()
			}
			alerts = append(alerts, Alert{
				Type:     AlertCircuitOpen,
				Severity: "high",
				Provider: p.Provider,
				Message: fmt.Sprintf("Circuit for %s opened after %d consecutive failures",
					p.Provider, p.ConsecutiveFailures),
				Details:   details,
				Timestamp: now,
			})
		case !wasClosed && isClosed:
			alerts = append(alerts, Alert{
				Type:      AlertCircuitRecovered,
				Severity:  "info",
				Provider:  p.Provider,
				Message:   fmt.Sprintf("Circuit for %s closed again", p.Provider),
				Timestamp: now,
			})
		}
	}

	prevHealthy := prev == nil || prev.Healthy > 0
	if cur.Searchable() && cur.Healthy == 0 && prevHealthy {
		alerts = append(alerts, Alert{
			Type:      AlertNoProviders,
			Severity:  "critical",
			Message:   "No search provider is available with a closed circuit; searches return cached or empty results",
			Details:   map[string]any{"providers": len(cur.Providers)},
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
				zap.String("provider", alert.Provider),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("provider", alert.Provider),
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
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resilience.StatusError("monitoring: webhook", resp.StatusCode, body)
	}
	return nil
}
