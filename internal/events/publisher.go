package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/models"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers outbox events to a broker. Publish must return an error
// unless every event was accepted.
type Publisher interface {
	Publish(ctx context.Context, events []models.OutboxEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	cfg    *config.KafkaConfig
}

func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}

	return &KafkaPublisher{writer: writer, cfg: cfg}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []models.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, toMessages(events)...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(events), err)
	}
	return nil
}

// EnsureTopic creates the topic if the cluster does not have it yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	if existing, err := conn.ReadPartitions(p.cfg.Topic); err == nil && len(existing) > 0 {
		return nil
	}

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             p.cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.cfg.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// toMessages keys every message by aggregate id so events of one order keep
// their order within a partition.
func toMessages(events []models.OutboxEvent) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(e.AggregateID, 10)),
			Value: e.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(e.EventID)},
				{Key: "event_type", Value: []byte(e.EventType)},
			},
			Time: e.CreatedAt,
		})
	}
	return msgs
}
