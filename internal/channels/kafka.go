package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes replies to a topic keyed by recipient
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaWriter creates a writer for the reply topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaNotifier creates a Kafka sink over writer
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now}
}

// Name implements Notifier
func (n *KafkaNotifier) Name() string {
	return "kafka"
}

type replyEnvelope struct {
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// Send implements Notifier
func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(replyEnvelope{Recipient: msg.To, Text: msg.Text, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := n.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.To), Value: value}); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}

// Close closes the underlying writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
