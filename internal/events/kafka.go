package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"pv-monitor/internal/models"
)

// Config holds the Kafka fault stream settings
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	ChannelSize  int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FaultStream writes fault alerts as JSON to a Kafka topic, keyed by prediction source.
// Notify only queues; Start drains the queue into the writer.
type FaultStream struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger

	AlertChan chan *models.FaultAlert

	enqueueTimeout time.Duration
}

var errNilWriter = errors.New("fault stream requires a writer")

// NewFaultStream creates a FaultStream backed by a kafka-go writer
func NewFaultStream(cfg Config, logger *slog.Logger) (*FaultStream, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("fault topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return newFaultStreamWithWriter(cfg, writer, logger)
}

// newFaultStreamWithWriter wires the provided writer. It is used in tests.
func newFaultStreamWithWriter(cfg Config, writer messageWriter, logger *slog.Logger) (*FaultStream, error) {
	if writer == nil {
		return nil, errNilWriter
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 100
	}
	return &FaultStream{
		writer:         writer,
		topic:          cfg.Topic,
		timeout:        cfg.WriteTimeout,
		logger:         logger.With("component", "kafka_fault_stream", "topic", cfg.Topic),
		AlertChan:      make(chan *models.FaultAlert, cfg.ChannelSize),
		enqueueTimeout: 1 * time.Second,
	}, nil
}

// Notify queues an alert for the writer loop. It fails if the queue stays full.
func (s *FaultStream) Notify(ctx context.Context, alert *models.FaultAlert) error {
	select {
	case s.AlertChan <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.enqueueTimeout):
		return fmt.Errorf("kafka alert queue full, dropping alert %s", alert.PredictionID)
	}
}

// Start writes queued alerts until the context is cancelled
func (s *FaultStream) Start(ctx context.Context) {
	s.logger.Info("starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, shutting down")
			return

		case alert := <-s.AlertChan:
			if err := s.write(context.WithoutCancel(ctx), alert); err != nil {
				s.logger.Error("failed to write fault alert", "prediction_id", alert.PredictionID, "error", err)
			}
		}
	}
}

// write sends one alert, bounded by the write timeout
func (s *FaultStream) write(ctx context.Context, alert *models.FaultAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal fault alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(alert.Source),
		Value: value,
		Time:  alert.Timestamp,
		Headers: []kafka.Header{
			{Key: "fault_type", Value: []byte(alert.FaultType.String())},
			{Key: "severity", Value: []byte(alert.Severity)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write fault alert to %s: %w", s.topic, err)
	}

	s.logger.Debug("fault alert written", "prediction_id", alert.PredictionID)
	return nil
}

// Close flushes and closes the writer
func (s *FaultStream) Close() error {
	return s.writer.Close()
}
