package message_broaker

import (
	"context"
	"errors"
	"sync"
)

const memoryQueueSize = 1024

var ErrBrokerClosed = errors.New("message broker closed")

// InMemory is a single-process broker for development and tests.
type InMemory struct {
	mu          sync.Mutex
	queues      map[string]chan []byte
	subscribers map[string]map[chan []byte]struct{}
	closed      bool
	done        chan struct{}
}

var _ MessageBroker = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		queues:      make(map[string]chan []byte),
		subscribers: make(map[string]map[chan []byte]struct{}),
		done:        make(chan struct{}),
	}
}

func (b *InMemory) queue(name string) (chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, memoryQueueSize)
		b.queues[name] = q
	}
	return q, nil
}

func (b *InMemory) Publish(ctx context.Context, queue string, message []byte) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}
	select {
	case q <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBrokerClosed
	}
}

func (b *InMemory) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	q, err := b.queue(queue)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q:
				select {
				case out <- msg:
				case <-ctx.Done():
					b.requeue(q, msg)
					return
				case <-b.done:
					return
				}
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

// requeue puts back a message taken by a consumer that stopped before
// handing it over.
func (b *InMemory) requeue(q chan []byte, msg []byte) {
	select {
	case q <- msg:
	default:
	}
}

func (b *InMemory) Broadcast(ctx context.Context, topic string, message []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	subs := make([]chan []byte, 0, len(b.subscribers[topic]))
	for ch := range b.subscribers[topic] {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- message:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBrokerClosed
		}
	}
	return nil
}

func (b *InMemory) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	in := make(chan []byte, 64)
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan []byte]struct{})
	}
	b.subscribers[topic][in] = struct{}{}
	b.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subscribers[topic], in)
			b.mu.Unlock()
		}()
		for {
			select {
			case msg := <-in:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

func (b *InMemory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
