package events

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// Hub fans run events out to every open consumer through a single
	// caravan topic
	Hub struct {
		topic     topic.Topic[*api.RunEvent]
		prod      topic.Producer[*api.RunEvent]
		consumers map[*Consumer]struct{}
		mu        sync.RWMutex
		closed    bool
	}

	// Consumer receives the run events published after it was created
	// that match its filter
	Consumer struct {
		hub    *Hub
		cons   topic.Consumer[*api.RunEvent]
		ch     chan *api.RunEvent
		done   chan struct{}
		filter EventFilter
		once   sync.Once
	}

	// EventFilter selects the run events a consumer receives
	EventFilter func(*api.RunEvent) bool
)

const consumerBufferSize = 64

// NewHub creates an empty event hub
func NewHub() *Hub {
	t := caravan.NewTopic[*api.RunEvent]()
	return &Hub{
		topic:     t,
		prod:      t.NewProducer(),
		consumers: map[*Consumer]struct{}{},
	}
}

// NewConsumer registers a consumer that receives events matching filter. A
// nil filter accepts every event. A consumer created after the hub is
// closed starts closed
func (h *Hub) NewConsumer(filter EventFilter) *Consumer {
	if filter == nil {
		filter = AllEvents
	}
	c := &Consumer{
		hub:    h,
		ch:     make(chan *api.RunEvent, consumerBufferSize),
		done:   make(chan struct{}),
		filter: filter,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c.stop()
		close(c.ch)
		return c
	}
	c.cons = h.topic.NewConsumer()
	h.consumers[c] = struct{}{}
	go c.forward()
	return c
}

// Publish sends an event to the topic. Events published after Close are
// discarded
func (h *Hub) Publish(ev *api.RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	message.Send(h.prod, ev)
}

// Len returns the number of open consumers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.consumers)
}

// Close closes every consumer and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	consumers := h.consumers
	h.consumers = map[*Consumer]struct{}{}
	h.closed = true
	h.prod.Close()
	h.mu.Unlock()

	for c := range consumers {
		c.stop()
	}
}

// Receive returns the channel of delivered events. It is closed when the
// consumer or its hub is closed
func (c *Consumer) Receive() <-chan *api.RunEvent {
	return c.ch
}

// Close unregisters the consumer
func (c *Consumer) Close() {
	c.hub.mu.Lock()
	delete(c.hub.consumers, c)
	c.hub.mu.Unlock()
	c.stop()
}

func (c *Consumer) stop() {
	c.once.Do(func() {
		close(c.done)
		if c.cons != nil {
			c.cons.Close()
		}
	})
}

func (c *Consumer) forward() {
	defer close(c.ch)
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.cons.Receive():
			if !ok {
				return
			}
			if !c.filter(ev) {
				continue
			}
			select {
			case c.ch <- ev:
			case <-c.done:
				return
			}
		}
	}
}
