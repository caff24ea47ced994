package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 256

// MemoryBackend is an in-process broker. Each channel is a buffered Go
// channel; every published message goes to exactly one subscriber. Failed
// deliveries are requeued once.
type MemoryBackend struct {
	mu       sync.RWMutex
	channels map[string]chan Message
	closed   bool
}

// NewMemoryBackend constructs an empty in-process broker.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{channels: make(map[string]chan Message)}
}

// Publish enqueues a message. It blocks only when the channel buffer is full.
func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	queue, err := b.queue(channel)
	if err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return "", errors.New("memory backend closed")
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case queue <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers queued messages to handler until ctx is done.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	queue, err := b.queue(channel)
	if err != nil {
		return err
	}

	redelivered := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-queue:
			if !ok {
				return errors.New("memory channel closed")
			}
			if err := handler(ctx, msg); err != nil && !redelivered[msg.ID] {
				redelivered[msg.ID] = true
				b.requeue(queue, msg)
				continue
			}
			delete(redelivered, msg.ID)
		}
	}
}

// Close closes all channels; subscribers return.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, queue := range b.channels {
		close(queue)
	}
	return nil
}

func (b *MemoryBackend) requeue(queue chan Message, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case queue <- msg:
	default:
	}
}

func (b *MemoryBackend) queue(channel string) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("memory backend closed")
	}
	queue, ok := b.channels[channel]
	if !ok {
		queue = make(chan Message, memoryBuffer)
		b.channels[channel] = queue
	}
	return queue, nil
}
