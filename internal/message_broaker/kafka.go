package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/segmentio/kafka-go"
)

// Kafka maps queues to topics read by one consumer group, and broadcast
// topics to group-less readers that start from the latest offset.
type Kafka struct {
	brokers []string
	groupID string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

var _ MessageBroker = (*Kafka)(nil)

func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka: group id is required")
	}
	return &Kafka{
		brokers: cfg.Brokers,
		groupID: cfg.GroupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, queue string, message []byte) error {
	if err := k.writer.WriteMessages(ctx, kafka.Message{Topic: queue, Value: message}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

func (k *Kafka) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		GroupID: k.groupID,
		Topic:   queue,
	})
	return k.pump(ctx, reader), nil
}

func (k *Kafka) Broadcast(ctx context.Context, topic string, message []byte) error {
	return k.Publish(ctx, topic, message)
}

func (k *Kafka) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     topic,
		Partition: 0,
	})
	if err := reader.SetOffset(kafka.LastOffset); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return k.pump(ctx, reader), nil
}

func (k *Kafka) pump(ctx context.Context, reader *kafka.Reader) <-chan []byte {
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	out := make(chan []byte, 100)
	go func() {
		defer close(out)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				continue
			}
			select {
			case out <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	errs := make([]error, 0, len(readers)+1)
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}
