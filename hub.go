package rewind

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"
	"go.uber.org/zap"
)

type (
	// Hub fans Events out to subscribed Handlers and Consumers. Handlers run
	// synchronously on the publishing goroutine, which holds the
	// Coordinator's lock, so they must not call back into the Coordinator.
	// Consumers read from a topic and never block publication
	Hub struct {
		inner     topic.Topic[*Event]
		producer  topic.Producer[*Event]
		logger    *zap.Logger
		handlers  map[uint64]*subscription
		consumers *registry
		onDrop    func(EventType)
		next      uint64
		mu        sync.RWMutex
	}

	// Consumer receives the Events it is interested in on a buffered
	// channel. Events that arrive while the buffer is full are dropped
	Consumer struct {
		hub       *Hub
		inner     topic.Consumer[*Event]
		interests *interests
		filtered  chan *Event
		done      chan struct{}
		closeOnce sync.Once
	}

	subscription struct {
		handler   Handler
		interests *interests
	}

	// registry counts Consumer interests so the Hub only produces Events
	// that somebody will read
	registry struct {
		mu            sync.RWMutex
		subscriptions map[EventType]int64
		allEvents     int64
		total         int64
	}

	interests struct {
		eventTypes map[EventType]bool // empty = all event types
	}
)

// DefaultConsumerBuffer is the channel size used by NewConsumer when a
// non-positive size is requested
const DefaultConsumerBuffer = 64

// NewHub creates a Hub with no subscribers
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		inner:    caravan.NewTopic[*Event](),
		logger:   logger,
		handlers: map[uint64]*subscription{},
		consumers: &registry{
			subscriptions: map[EventType]int64{},
		},
	}
}

// Subscribe registers a Handler for the given event types. If no types are
// provided, the Handler receives every Event. The returned function removes
// the subscription
func (h *Hub) Subscribe(fn Handler, types ...EventType) func() {
	sub := &subscription{
		handler:   fn,
		interests: newInterests(types),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.handlers[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers, id)
		})
	}
}

// NewConsumer creates a Consumer interested in the given event types. If no
// types are provided, the Consumer receives every Event
func (h *Hub) NewConsumer(size int, types ...EventType) *Consumer {
	if size <= 0 {
		size = DefaultConsumerBuffer
	}

	h.mu.Lock()
	if h.producer == nil {
		h.producer = h.inner.NewProducer()
	}
	i := newInterests(types)
	h.consumers.register(i)
	c := &Consumer{
		hub:       h,
		inner:     h.inner.NewConsumer(),
		interests: i,
		filtered:  make(chan *Event, size),
		done:      make(chan struct{}),
	}
	h.mu.Unlock()

	go c.forward()
	return c
}

// HasSubscribers reports whether any Handler or Consumer would receive an
// Event of the given type
func (h *Hub) HasSubscribers(typ EventType) bool {
	if h.consumers.hasSubscribers(typ) {
		return true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.handlers {
		if sub.interests.matches(typ) {
			return true
		}
	}
	return false
}

func (h *Hub) publish(ev *Event) {
	h.mu.RLock()
	var handlers []Handler
	for _, sub := range h.handlers {
		if sub.interests.matches(ev.Type) {
			handlers = append(handlers, sub.handler)
		}
	}
	if h.producer != nil && h.consumers.hasSubscribers(ev.Type) {
		h.producer.Send() <- ev
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(ev); err != nil {
			h.logger.Warn("Event handler failed",
				zap.String("event_type", string(ev.Type)),
				zap.Int64("version", int64(ev.Version)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) release(c *Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumers.unregister(c.interests) == 0 && h.producer != nil {
		h.producer.Close()
		h.producer = nil
	}
	c.inner.Close()
}

func (h *Hub) dropped(typ EventType) {
	if h.onDrop != nil {
		h.onDrop(typ)
	}
}

// Receive returns the channel Events are delivered on. It is closed when
// the Consumer is closed
func (c *Consumer) Receive() <-chan *Event {
	return c.filtered
}

// Close unregisters the Consumer and closes its channel
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.release(c)
	})
	return nil
}

func (c *Consumer) forward() {
	defer close(c.filtered)
	in := c.inner.Receive()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if c.interests.matches(ev.Type) {
				c.deliver(ev)
			}
		}
	}
}

func (c *Consumer) deliver(ev *Event) {
	select {
	case c.filtered <- ev:
	default:
		c.hub.logger.Warn("Consumer buffer full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("version", int64(ev.Version)),
			zap.Int("buffer_size", cap(c.filtered)),
		)
		c.hub.dropped(ev.Type)
	}
}

func newInterests(types []EventType) *interests {
	i := &interests{}
	if len(types) > 0 {
		i.eventTypes = make(map[EventType]bool, len(types))
		for _, t := range types {
			i.eventTypes[t] = true
		}
	}
	return i
}

func (i *interests) matches(typ EventType) bool {
	return len(i.eventTypes) == 0 || i.eventTypes[typ]
}

// register adds a Consumer's interests to the registry
func (r *registry) register(i *interests) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if len(i.eventTypes) == 0 {
		r.allEvents++
		return
	}
	for et := range i.eventTypes {
		r.subscriptions[et]++
	}
}

// unregister removes a Consumer's interests and returns the number of
// Consumers that remain
func (r *registry) unregister(i *interests) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total--
	if len(i.eventTypes) == 0 {
		r.allEvents--
		return r.total
	}
	for et := range i.eventTypes {
		r.subscriptions[et]--
		if r.subscriptions[et] == 0 {
			delete(r.subscriptions, et)
		}
	}
	return r.total
}

func (r *registry) hasSubscribers(typ EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allEvents > 0 || r.subscriptions[typ] > 0
}
