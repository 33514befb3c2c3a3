package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/config"
)

// Checker runs periodic health checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	last *HealthSnapshot
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check collects a snapshot, sends alerts for transitions since the last
// check and returns them.
func (c *Checker) check(ctx context.Context, log *zap.Logger) []Alert {
	snap := c.collector.Collect()
	alerts := c.alerter.Evaluate(c.last, snap)
	c.last = snap

	if len(alerts) == 0 {
		log.Debug("monitoring: all clear", zap.Int("healthy", snap.Healthy))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alerts evaluated",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
		zap.Int("healthy", snap.Healthy),
	)
	return alerts
}
