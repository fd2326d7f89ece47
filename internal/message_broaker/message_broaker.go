package message_broaker

import "context"

// MessageBroker carries lifecycle events between processes. Queues have
// competing consumers: each message goes to one of them. Topics fan out: a
// broadcast reaches every live subscriber.
type MessageBroker interface {
	Publish(ctx context.Context, queue string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan []byte, error)
	Broadcast(ctx context.Context, topic string, message []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
