package graph

import (
	"context"
	"sync"

	"github.com/senomas/librarygql/graph/model"
)

const subscriberBuffer = 16

// Broker fans published books out to subscriptions. Slow subscribers miss
// events rather than block the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan interface{}]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan interface{}]struct{})}
}

// Subscribe returns a channel of *model.Book that is closed when ctx ends or
// the broker is closed.
func (b *Broker) Subscribe(ctx context.Context) chan interface{} {
	ch := make(chan interface{}, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch
}

func (b *Broker) remove(ch chan interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broker) Publish(book *model.Book) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- book:
		default:
		}
	}
}

func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
