package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pv-monitor/internal/models"
	"pv-monitor/internal/observability"
)

// subscribeClient is the part of mqtt.Client the subscriber needs
type subscribeClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Subscriber receives telemetry batches and writes them to a channel
type Subscriber struct {
	client  subscribeClient
	metrics *observability.Metrics
	logger  *slog.Logger

	// Output channel (written by subscriber, read by the telemetry service)
	BatchChan chan *models.TelemetryBatch

	telemetryTopic string
	sendTimeout    time.Duration
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	TelemetryTopic string // e.g., "pv/+/telemetry"
}

// NewSubscriber creates a new MQTT subscriber writing to batchChan
func NewSubscriber(
	client subscribeClient,
	config SubscriberConfig,
	batchChan chan *models.TelemetryBatch,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:         client,
		metrics:        metrics,
		logger:         logger.With("component", "mqtt_subscriber"),
		BatchChan:      batchChan,
		telemetryTopic: config.TelemetryTopic,
		sendTimeout:    1 * time.Second,
	}
}

// SubscribeAll subscribes to the telemetry topic
func (s *Subscriber) SubscribeAll() error {
	if s.telemetryTopic == "" {
		return fmt.Errorf("no telemetry topic configured")
	}

	token := s.client.Subscribe(s.telemetryTopic, 1, s.handleTelemetry)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", token.Error())
	}

	s.logger.Info("subscribed", "topic", s.telemetryTopic)
	return nil
}

// handleTelemetry wraps a telemetry message in a batch and writes it to the channel
func (s *Subscriber) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	siteID := extractSiteID(msg.Topic())
	if siteID == "" {
		s.metrics.MQTTBatch("rejected")
		s.logger.Warn("could not extract site id from topic", "topic", msg.Topic())
		return
	}

	payload := msg.Payload()
	batch := &models.TelemetryBatch{
		SiteID:     siteID,
		ReceivedAt: time.Now().UTC(),
		Payload:    append([]byte(nil), payload...),
	}

	// Send to channel (non-blocking with timeout)
	select {
	case s.BatchChan <- batch:
		s.logger.Debug("telemetry batch queued", "site_id", siteID, "bytes", len(payload))
	case <-time.After(s.sendTimeout):
		s.metrics.MQTTBatch("dropped")
		s.logger.Warn("batch channel full, dropping telemetry", "site_id", siteID)
	}
}
