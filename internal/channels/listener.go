package channels

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader used by Listener
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader creates a consumer-group reader for the request topic
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

const (
	minReadBackoff = 100 * time.Millisecond
	maxReadBackoff = 30 * time.Second
)

// Listener consumes prediction requests from Kafka. The message key is the
// recipient and the value is the command text. Acks and results are
// published through the sink.
type Listener struct {
	reader     MessageReader
	sink       Notifier
	dispatcher *Dispatcher
	log        zerolog.Logger

	backoff time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener creates a Kafka request listener
func NewListener(reader MessageReader, sink Notifier, dispatcher *Dispatcher, log zerolog.Logger) *Listener {
	return &Listener{
		reader:     reader,
		sink:       sink,
		dispatcher: dispatcher,
		backoff:    minReadBackoff,
		log:        log.With().Str("component", "kafka_listener").Logger(),
	}
}

// Start begins consuming in the background
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
	l.log.Info().Msg("Kafka listener started")
}

// run consumes until ctx is done. Read errors are retried with a doubling
// delay capped at maxReadBackoff.
func (l *Listener) run(ctx context.Context) {
	delay := l.backoff
	for {
		m, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			l.log.Error().Err(err).Dur("retry_in", delay).Msg("Failed to read request")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReadBackoff)
			continue
		}
		delay = l.backoff
		l.handle(ctx, m)
	}
}

func (l *Listener) handle(ctx context.Context, m kafka.Message) {
	recipient := string(m.Key)
	if recipient == "" {
		l.log.Warn().Int64("offset", m.Offset).Msg("Request without recipient key, dropping")
		return
	}

	text := string(m.Value)
	ack := InvalidFormatText
	inst, parseErr := ParseCommand(text)
	if parseErr == nil {
		ack = AckText(inst)
	}
	// the acknowledgement goes out before the result can
	if err := l.sink.Send(ctx, Message{To: recipient, Text: ack}); err != nil {
		l.log.Error().Err(err).Str("recipient", recipient).Msg("Failed to send acknowledgement")
	}
	if parseErr != nil {
		return
	}

	if _, _, err := l.dispatcher.Submit(l.sink, recipient, "", text); err != nil {
		l.log.Warn().Err(err).Str("recipient", recipient).Msg("Request not scheduled")
	}
}

// Close stops consuming, waits for the loop to exit and closes the reader
func (l *Listener) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return l.reader.Close()
}
