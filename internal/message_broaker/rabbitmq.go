package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RezaEskandarii/genjob/types/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	contentType string

	mu       sync.Mutex
	declared map[string]bool
}

var _ MessageBroker = (*RabbitMQ)(nil)

// NewRabbitMQ creates a new instance of RabbitMQ message broker. Queues are
// bound to a direct exchange with the queue name as routing key; each
// broadcast topic gets its own fanout exchange.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		exchange:    cfg.Exchange,
		contentType: contentType,
		declared:    make(map[string]bool),
	}, nil
}

func (r *RabbitMQ) declareQueue(queue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[queue] {
		return nil
	}

	if _, err := r.channel.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if err := r.channel.QueueBind(
		queue,
		queue,
		r.exchange,
		false,
		nil,
	); err != nil {
		return err
	}
	r.declared[queue] = true
	return nil
}

func (r *RabbitMQ) declareFanout(topic string) (string, error) {
	name := fanoutExchange(r.exchange, topic)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[name] {
		return name, nil
	}
	if err := r.channel.ExchangeDeclare(
		name,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return "", err
	}
	r.declared[name] = true
	return name, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, queue string, message []byte) error {
	if err := r.declareQueue(queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

// Consume acknowledges a delivery only once it has been handed to the
// caller, so messages pending at shutdown are redelivered.
func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	if err := r.declareQueue(queue); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 1000)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
					_ = msg.Ack(false)
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Broadcast(ctx context.Context, topic string, message []byte) error {
	name, err := r.declareFanout(topic)
	if err != nil {
		return fmt.Errorf("failed to declare exchange for %s: %w", topic, err)
	}
	return r.channel.PublishWithContext(
		ctx,
		name,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: r.contentType,
			Body:        message,
		},
	)
}

// Subscribe binds a server-named exclusive queue to the topic's fanout
// exchange; it disappears with the connection.
func (r *RabbitMQ) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	name, err := r.declareFanout(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange for %s: %w", topic, err)
	}

	q, err := r.channel.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := r.channel.QueueBind(q.Name, "", name, false, nil); err != nil {
		return nil, err
	}

	msgs, err := r.channel.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 100)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}

func fanoutExchange(exchange, topic string) string {
	return exchange + "." + topic
}
