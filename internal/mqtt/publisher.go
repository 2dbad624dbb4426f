package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pv-monitor/internal/models"
)

// publishClient is the part of mqtt.Client the publisher needs
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher publishes fault alerts queued on its channel
type Publisher struct {
	client publishClient
	logger *slog.Logger

	// Input channel (read by publisher, written through Notify)
	AlertChan chan *models.FaultAlert

	faultTopic     string // e.g., "pv/{site_id}/fault"
	enqueueTimeout time.Duration
	publishTimeout time.Duration
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	FaultTopic     string
	ChannelSize    int
	PublishTimeout time.Duration
}

// NewPublisher creates a new MQTT alert publisher
func NewPublisher(client publishClient, config PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = 50
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	return &Publisher{
		client:         client,
		logger:         logger.With("component", "mqtt_publisher"),
		AlertChan:      make(chan *models.FaultAlert, config.ChannelSize),
		faultTopic:     config.FaultTopic,
		enqueueTimeout: 1 * time.Second,
		publishTimeout: config.PublishTimeout,
	}
}

// Notify queues an alert for publishing. It fails if the queue stays full.
func (p *Publisher) Notify(ctx context.Context, alert *models.FaultAlert) error {
	select {
	case p.AlertChan <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.enqueueTimeout):
		return fmt.Errorf("mqtt alert queue full, dropping alert %s", alert.PredictionID)
	}
}

// Start publishes queued alerts until the context is cancelled
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("starting")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down")
			return

		case alert := <-p.AlertChan:
			if err := p.publishAlert(alert); err != nil {
				p.logger.Error("failed to publish fault alert", "prediction_id", alert.PredictionID, "error", err)
			}
		}
	}
}

// publishAlert publishes a fault alert on the site's fault topic
func (p *Publisher) publishAlert(alert *models.FaultAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal fault alert: %w", err)
	}

	topic := formatTopic(p.faultTopic, siteFromSource(alert.Source))

	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("timed out publishing fault alert to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish fault alert: %w", err)
	}

	p.logger.Info("published fault alert", "topic", topic, "fault_type", alert.FaultType.String(), "severity", alert.Severity)
	return nil
}
