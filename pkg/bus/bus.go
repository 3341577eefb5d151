package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus carries normalized messages between a channel front-end and the
// worker that runs the orchestrator, plus a lossy event stream for observers.
// Every operation returns false once the bus is closed or ctx ends.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:          make(chan InboundMessage, defaultBufferSize),
		outbound:         make(chan OutboundMessage, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound queues a customer message for the worker.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	return enqueue(ctx, mb.done, mb.inbound, msg)
}

// ConsumeInbound waits for the next customer message.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return dequeue(ctx, mb.done, mb.inbound)
}

// PublishOutbound queues a reply for the front-end.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	return enqueue(ctx, mb.done, mb.outbound, msg)
}

// SubscribeOutbound waits for the next reply.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return dequeue(ctx, mb.done, mb.outbound)
}

// Close stops all queues and closes every event subscription. It is safe to
// call more than once.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}

// enqueue refuses work on a closed bus or finished ctx even when the queue
// still has room, so nothing is accepted after Close.
func enqueue[T any](ctx context.Context, done <-chan struct{}, queue chan<- T, msg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil || isClosed(done) {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case queue <- msg:
		return true
	}
}

func dequeue[T any](ctx context.Context, done <-chan struct{}, queue <-chan T) (T, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case <-done:
		return zero, false
	case msg := <-queue:
		return msg, true
	}
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
