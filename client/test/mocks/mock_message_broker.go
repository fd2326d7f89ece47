package mocks

import "context"

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
type MockMessageBroker struct {
	PublishFunc   func(ctx context.Context, queue string, message []byte) error
	ConsumeFunc   func(ctx context.Context, queue string) (<-chan []byte, error)
	BroadcastFunc func(ctx context.Context, topic string, message []byte) error
	SubscribeFunc func(ctx context.Context, topic string) (<-chan []byte, error)
	CloseFunc     func() error
}

func (m *MockMessageBroker) Publish(ctx context.Context, queue string, message []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, queue, message)
	}
	return nil
}

func (m *MockMessageBroker) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, queue)
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *MockMessageBroker) Broadcast(ctx context.Context, topic string, message []byte) error {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, topic, message)
	}
	return nil
}

func (m *MockMessageBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic)
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
