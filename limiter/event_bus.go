package limiter

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
)

// subscription a listener and the event types it wants, empty means all
type subscription struct {
	listener EventListener
	types    []EventType
}

func (s subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// eventBus single dispatch goroutine over a bounded channel.
// Subscriptions are copy-on-write so dispatch reads them without locking.
type eventBus struct {
	subs    atomic.Pointer[[]subscription]
	events  chan Event
	dropped atomic.Int64
	logger  *logger.CtxZapLogger

	mu     sync.RWMutex // guards closed against send-on-closed
	closed bool
	done   chan struct{}
}

// NewEventBus creates an event bus with its dispatch goroutine
func NewEventBus(bufferSize int) EventBus {
	return newEventBus(bufferSize, nil)
}

func newEventBus(bufferSize int, log *logger.CtxZapLogger) *eventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if log == nil {
		log = logger.GetLogger("yogan")
	}

	b := &eventBus{
		events: make(chan Event, bufferSize),
		logger: log,
		done:   make(chan struct{}),
	}
	b.subs.Store(&[]subscription{})

	go b.run()
	return b
}

// Subscribe registers a listener for every event type
func (b *eventBus) Subscribe(listener EventListener) {
	b.SubscribeTypes(listener)
}

// SubscribeTypes registers a listener for the given event types only
func (b *eventBus) SubscribeTypes(listener EventListener, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	next := append(slices.Clone(*b.subs.Load()), subscription{listener: listener, types: types})
	b.subs.Store(&next)
}

// Publish never blocks; limiters publish while holding their partition lock
func (b *eventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.events <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped number of events discarded because the buffer was full
func (b *eventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits until the buffered ones are delivered
func (b *eventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()

	<-b.done
	if n := b.dropped.Load(); n > 0 {
		b.logger.WarnCtx(context.Background(), "Admission events dropped, buffer too small",
			zap.Int64("dropped", n),
			zap.Int("buffer", cap(b.events)))
	}
}

func (b *eventBus) run() {
	defer close(b.done)

	for event := range b.events {
		for _, sub := range *b.subs.Load() {
			if sub.wants(event.Type()) {
				b.deliver(sub.listener, event)
			}
		}
	}
}

// deliver isolates a panicking listener from the others
func (b *eventBus) deliver(listener EventListener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorCtx(event.Context(), "Admission event listener panicked",
				zap.String("event", string(event.Type())),
				zap.String("policy", event.Policy()),
				zap.Any("panic", r))
		}
	}()
	listener.OnEvent(event)
}
