package events

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Sink is the one-way channel the pipelines push progress and streaming
// events into. Implementations must not block the emitter.
type Sink interface {
	Emit(event string, payload interface{})
}

type Event struct {
	Name    string
	Payload interface{}
}

// Bus is a small in-process pub/sub bridging pipeline emissions to the
// HTTP stream handlers. Subscriber channels are buffered; events for a slow
// subscriber are dropped rather than stalling a pipeline.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Emit holds the read lock across the sends. Cancel closes channels under
// the write lock, so no channel can be closed while a send is in flight.
func (b *Bus) Emit(event string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[event] {
		select {
		case ch <- Event{Name: event, Payload: payload}:
		default:
			logutil.GetLogger(context.Background()).Warn("event dropped, subscriber too slow", zap.String("event", event))
		}
	}
}

// Subscribe registers interest in one event name. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(event string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[event]
		for i, sub := range subs {
			if sub == ch {
				b.subs[event] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}
