package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes notifications as JSON events keyed by tag, so a
// compacted topic keeps only the latest message per alert.
type KafkaChannel struct {
	topic  string
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaChannel constructs the Kafka channel. It reports unavailable when
// brokers or topic are missing.
func NewKafkaChannel(brokers []string, topic string, logger zerolog.Logger) *KafkaChannel {
	k := &KafkaChannel{
		topic:  topic,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}
	if len(brokers) > 0 && topic != "" {
		k.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return k
}

func (k *KafkaChannel) Name() string { return "kafka" }

func (k *KafkaChannel) Permission(ctx context.Context) Permission {
	if k.writer == nil {
		return PermissionUnavailable
	}
	return PermissionAuthorized
}

func (k *KafkaChannel) RequestPermission(ctx context.Context) (Permission, error) {
	return k.Permission(ctx), nil
}

type alertEvent struct {
	Tag       string    `json:"tag"`
	AlertID   string    `json:"alert_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Base      string    `json:"base"`
	Target    string    `json:"target"`
	Rate      string    `json:"rate"`
	Threshold string    `json:"threshold"`
	Mode      string    `json:"mode"`
	At        time.Time `json:"at"`
}

func (k *KafkaChannel) Deliver(ctx context.Context, n Notification) error {
	if k.writer == nil {
		return fmt.Errorf("kafka channel not configured")
	}

	value, err := json.Marshal(alertEvent{
		Tag:       n.Tag,
		AlertID:   n.AlertID,
		Title:     n.Title,
		Body:      n.Body,
		Base:      n.Base,
		Target:    n.Target,
		Rate:      n.Rate.String(),
		Threshold: n.Threshold.String(),
		Mode:      string(n.Mode),
		At:        n.At,
	})
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.Tag),
		Value: value,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write alert event: %w", err)
	}
	k.logger.Debug().Str("tag", n.Tag).Str("topic", k.topic).Msg("alert event published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaChannel) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

var _ Capability = (*KafkaChannel)(nil)
