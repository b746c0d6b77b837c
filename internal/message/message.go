package message

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "relcal/internal/log"
)

// ActionUpdateSettings asks the engine to reload settings and reconcile.
const ActionUpdateSettings = "updateSettings"

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrBusFull       = errors.New("message bus full")
)

// Message is the only shape exchanged between the settings surface and
// the engine.
type Message struct {
	Action string `json:"action"`
}

// Validate rejects actions the engine does not understand.
func (m Message) Validate() error {
	if m.Action != ActionUpdateSettings {
		return fmt.Errorf("message: %q: %w", m.Action, ErrUnknownAction)
	}
	return nil
}

// Bus delivers messages to subscribers in send order from a single
// dispatch goroutine (see Run).
type Bus struct {
	ch chan Message

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Message)
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 16
	}
	return &Bus{
		ch:   make(chan Message, size),
		subs: make(map[int]func(Message)),
	}
}

// Subscribe registers fn; the returned func unregisters it.
func (b *Bus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Send queues m for delivery without blocking.
func (b *Bus) Send(m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	select {
	case b.ch <- m:
		return nil
	default:
		return ErrBusFull
	}
}

// Run dispatches queued messages until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.ch:
			b.dispatch(m)
		}
	}
}

func (b *Bus) dispatch(m Message) {
	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	appLog.Debug("dispatching message", "action", m.Action, "subscribers", len(fns))
	for _, fn := range fns {
		fn(m)
	}
}
