// Package notify publishes complaint status transitions to an MQTT
// broker so downstream dashboards can react without polling. The
// publisher uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. Notifications are best effort:
// a failed publish is logged and dropped, never surfaced to the user
// whose transition it describes.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/scope-engine/scope-assistant/internal/config"
	"github.com/scope-engine/scope-assistant/internal/tools"
)

// statusPayload is the retained JSON body published per transition.
type statusPayload struct {
	ComplaintID int64  `json:"complaint_id"`
	Previous    string `json:"previous"`
	New         string `json:"new"`
	At          string `json:"at"`
}

// Publisher implements tools.Notifier over an MQTT broker.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// before wiring it into the capability registry.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

// Start connects to the MQTT broker. autopaho keeps retrying in the
// background, so a broker outage at startup is logged, not fatal.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "scope-assistant",
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}

// StatusChanged publishes a retained transition payload. It implements
// [tools.Notifier]; failures are logged and dropped.
func (p *Publisher) StatusChanged(ctx context.Context, change tools.StatusChange) {
	if p.cm == nil {
		return
	}

	payload, err := json.Marshal(statusPayload{
		ComplaintID: change.ID,
		Previous:    string(change.Previous),
		New:         string(change.New),
		At:          change.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Warn("mqtt payload marshal failed", "complaint_id", change.ID, "error", err)
		return
	}

	topic := fmt.Sprintf("%s/complaints/%d/status", p.cfg.TopicPrefix, change.ID)
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt status publish failed",
			"complaint_id", change.ID, "topic", topic, "error", err)
		return
	}

	p.logger.Debug("mqtt status published",
		"complaint_id", change.ID,
		"previous", change.Previous,
		"new", change.New,
	)
}
