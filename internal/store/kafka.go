package store

import (
	"context"
	"time"

	"pricefeed/internal/model"

	"github.com/segmentio/kafka-go"
	yerrors "github.com/yanun0323/errors"
)

// KafkaWriter is the subset of *kafka.Writer the publisher needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that keys messages by symbol so one symbol stays on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Kafka publishes committed snapshots to a topic.
type Kafka struct {
	writer KafkaWriter
}

func NewKafka(writer KafkaWriter) *Kafka {
	return &Kafka{writer: writer}
}

func (k *Kafka) Publish(ctx context.Context, snapshot model.PriceSnapshot) error {
	payload, err := encodeMessage(snapshot)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snapshot.Symbol),
		Value: payload,
		Time:  snapshot.Timestamp,
	})
	if err != nil {
		return yerrors.Wrap(err, "kafka write").With("symbol", snapshot.Symbol)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
