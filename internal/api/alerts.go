package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/SentientStory/internal/events"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
	AlertRegistryFull        = "registry_full"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Game      string                 `json:"game"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL              string
	Game                    string
	MQTTDisconnectDelay     time.Duration // How long MQTT must be disconnected before alerting
	PostgresDisconnectDelay time.Duration // How long Postgres must be disconnected before alerting
}

// outage tracks one dependency between checks.
type outage struct {
	since     time.Time
	alertSent bool
	lastState bool
}

// Alerter posts operational alerts to a webhook. Without a webhook URL the
// alerts are only logged.
type Alerter struct {
	cfg    AlertConfig
	logger *zap.Logger
	client *http.Client
	now    func() time.Time

	mu           sync.Mutex
	mqtt         outage
	postgres     outage
	registryFull bool

	// send is replaced in tests.
	send func(AlertPayload)
}

// NewAlerter creates an alerter. Zero delays default to 30s for MQTT and
// 5s for Postgres.
func NewAlerter(cfg AlertConfig, logger *zap.Logger) *Alerter {
	if cfg.MQTTDisconnectDelay <= 0 {
		cfg.MQTTDisconnectDelay = 30 * time.Second
	}
	if cfg.PostgresDisconnectDelay <= 0 {
		cfg.PostgresDisconnectDelay = 5 * time.Second
	}
	if cfg.Game == "" {
		cfg.Game = "unknown"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Alerter{
		cfg:      cfg,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		mqtt:     outage{lastState: true},
		postgres: outage{lastState: true},
	}
	a.send = a.post

	if cfg.WebhookURL != "" {
		logger.Info("Alerts enabled",
			zap.Duration("mqtt_delay", cfg.MQTTDisconnectDelay),
			zap.Duration("postgres_delay", cfg.PostgresDisconnectDelay),
		)
	}
	return a
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func (a *Alerter) SendAlert(event, severity, message string, details map[string]interface{}) {
	if a.cfg.WebhookURL == "" {
		a.logger.Warn("Alert",
			zap.String("alert", event),
			zap.String("severity", severity),
			zap.String("message", message),
			zap.Any("details", details),
		)
		return
	}

	payload := AlertPayload{
		Game:      a.cfg.Game,
		Event:     event,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	go a.send(payload)
}

// post performs the actual HTTP POST (runs in goroutine).
func (a *Alerter) post(payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("Failed to marshal alert", zap.Error(err))
		return
	}

	resp, err := a.client.Post(a.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("Alert webhook POST failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Error("Alert webhook rejected alert", zap.Int("status", resp.StatusCode))
	}
}

// check advances one outage and reports whether an alert or a recovery
// notice is due. Must be called with a.mu held.
func (a *Alerter) check(o *outage, connected bool, delay time.Duration) (alert, recovered bool, down time.Duration) {
	now := a.now()

	if connected {
		recovered = !o.lastState && o.alertSent
		*o = outage{lastState: true}
		return false, recovered, 0
	}

	if o.lastState {
		o.since = now
	}
	o.lastState = false

	down = now.Sub(o.since)
	if !o.alertSent && down >= delay {
		o.alertSent = true
		return true, false, down
	}
	return false, false, down
}

// CheckMQTT sends an alert once MQTT has been down longer than the delay,
// and a recovery notice when it comes back.
func (a *Alerter) CheckMQTT(connected bool) {
	a.mu.Lock()
	alert, recovered, down := a.check(&a.mqtt, connected, a.cfg.MQTTDisconnectDelay)
	since := a.mqtt.since
	a.mu.Unlock()

	switch {
	case recovered:
		a.SendAlert(AlertMQTTDisconnected, SeverityInfo, "MQTT connection restored", map[string]interface{}{
			"recovered_at": a.now().UTC().Format(time.RFC3339),
		})
	case alert:
		a.SendAlert(AlertMQTTDisconnected, SeverityWarning, "MQTT broker disconnected", map[string]interface{}{
			"disconnected_since":   since.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(down.Seconds()),
		})
	}
}

// CheckPostgres is CheckMQTT for the event journal.
func (a *Alerter) CheckPostgres(connected bool) {
	a.mu.Lock()
	alert, recovered, down := a.check(&a.postgres, connected, a.cfg.PostgresDisconnectDelay)
	since := a.postgres.since
	a.mu.Unlock()

	switch {
	case recovered:
		a.SendAlert(AlertPostgresUnavailable, SeverityInfo, "PostgreSQL connection restored", map[string]interface{}{
			"recovered_at": a.now().UTC().Format(time.RFC3339),
		})
	case alert:
		a.SendAlert(AlertPostgresUnavailable, SeverityCritical, "PostgreSQL unavailable", map[string]interface{}{
			"disconnected_since":   since.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(down.Seconds()),
		})
	}
}

// handleEvent alerts the first time the registry fills up. The registry
// never shrinks, so one alert per process is enough.
func (a *Alerter) handleEvent(e events.Event) {
	if e.Name != "registry.full" {
		return
	}

	a.mu.Lock()
	first := !a.registryFull
	a.registryFull = true
	a.mu.Unlock()

	if first {
		a.SendAlert(AlertRegistryFull, SeverityWarning, "Registry is full, new outcomes are dropped", e.Fields)
	}
}

// Run checks the readiness probes every interval and watches the event
// stream until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context, readiness *Readiness, interval time.Duration) {
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			a.handleEvent(e)
		case <-ticker.C:
			if enabled, connected := readiness.MQTT(); enabled {
				a.CheckMQTT(connected)
			}
			if enabled, connected := readiness.Postgres(); enabled {
				a.CheckPostgres(connected)
			}
		}
	}
}
