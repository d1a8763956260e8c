package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every event as JSON keyed by service id, so one
// service's events stay ordered within a partition.
type Kafka struct {
	w     messageWriter
	topic string
}

func NewKafka(brokers []string, topic string) *Kafka {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &Kafka{
		topic: topic,
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			Compression:            kafka.Snappy,
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			MaxAttempts:            3,
		},
	}
}

func (k *Kafka) Notify(ctx context.Context, ev Event) error {
	if k == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ServiceID.String()),
		Value: b,
		Time:  ev.CheckedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka %s: %w", k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if k == nil {
		return nil
	}
	return k.w.Close()
}
