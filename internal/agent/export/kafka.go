package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coflowd/internal/agent/config"
	"coflowd/internal/types"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaMirror publishes a copy of each heartbeat to a Kafka topic so an
// observability pipeline can consume throughput reports without going
// through the master. Publishing is best effort: failures are logged
// and never affect the heartbeat cycle.
type KafkaMirror struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaMirror creates a mirror for the configured brokers and topic
func NewKafkaMirror(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka mirror requires at least one broker")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaMirror{
		writer: writer,
		logger: logger,
	}, nil
}

// Publish sends one heartbeat, keyed by agent id
func (m *KafkaMirror) Publish(ctx context.Context, hb types.Heartbeat) error {
	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(hb.AgentID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish heartbeat: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
