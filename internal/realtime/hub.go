package realtime

import (
	"context"
	"log"
	"sync"

	"comanda/internal/models"
)

// EventType identifies an order change event.
type EventType string

const (
	EventOrderCreated EventType = "order_created"
	EventOrderUpdated EventType = "order_updated"
	EventOrderDeleted EventType = "order_deleted"
)

// AlertSignal tells staff clients what to do with the repeating new-order
// alert. One alert represents "at least one unacknowledged pending order";
// simultaneous pending orders never stack timers.
type AlertSignal string

const (
	// AlertStart begins the repeating alert (sent on the 0 -> 1 edge).
	AlertStart AlertSignal = "start"
	// AlertStop ends it (sent when the last pending order is acknowledged).
	AlertStop AlertSignal = "stop"
)

// Event is one fan-out message to staff clients. Order is nil for deletes.
type Event struct {
	Type    EventType     `json:"type"`
	Order   *models.Order `json:"order,omitempty"`
	OrderID uint          `json:"order_id"`
	Alert   AlertSignal   `json:"alert,omitempty"`
}

// sessionBuffer bounds a subscriber's queue; a session that cannot keep up
// is dropped rather than buffered without limit.
const sessionBuffer = 64

// Session is one connected staff client's ordered event feed.
type Session struct {
	events chan Event
	hub    *Hub
	closed bool
}

// Events returns the session's ordered event channel. It is closed when the
// session is dropped or the hub shuts down.
func (s *Session) Events() <-chan Event { return s.events }

// Close detaches the session from the hub.
func (s *Session) Close() { s.hub.unsubscribe(s) }

// Hub fans order change events out to every connected staff session in
// delivery order and owns the alert state. Events for the same order are
// never reordered: a single goroutine consumes the inbound queue, and the
// same goroutine owns the unacked set so an event that never reaches
// delivery cannot leave the alert state out of sync with what was sent.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]bool
	inbound  chan Event

	// unacked is touched only by the Run goroutine.
	unacked map[uint]bool
}

// NewHub creates a hub; call Run to start delivery.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[*Session]bool),
		inbound:  make(chan Event, 256),
		unacked:  make(map[uint]bool),
	}
}

// Run consumes and delivers events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event := <-h.inbound:
			h.deliver(event)
		}
	}
}

// Subscribe attaches a new staff session.
func (h *Hub) Subscribe() *Session {
	session := &Session{events: make(chan Event, sessionBuffer), hub: h}
	h.mu.Lock()
	h.sessions[session] = true
	h.mu.Unlock()
	return session
}

func (h *Hub) unsubscribe(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[session] && !session.closed {
		delete(h.sessions, session)
		session.closed = true
		close(session.events)
	}
}

// OrderCreated queues a creation event. Pending orders from the public menu
// or the WhatsApp agent demand acknowledgement and may start the alert;
// staff-entered orders only surface a passive notice.
func (h *Hub) OrderCreated(order *models.Order) {
	h.push(Event{Type: EventOrderCreated, Order: order, OrderID: order.ID})
}

// OrderUpdated queues a status change. Moving out of Pending acknowledges
// the order; the alert stops once nothing pending remains.
func (h *Hub) OrderUpdated(order *models.Order) {
	h.push(Event{Type: EventOrderUpdated, Order: order, OrderID: order.ID})
}

// OrderDeleted queues a removal event and releases any pending alert claim.
func (h *Hub) OrderDeleted(orderID uint) {
	h.push(Event{Type: EventOrderDeleted, OrderID: orderID})
}

// applyAlert mutates the unacked set for an event at delivery time and
// returns the edge signal, if any. Run-goroutine only.
func (h *Hub) applyAlert(event Event) AlertSignal {
	switch event.Type {
	case EventOrderCreated:
		if event.Order == nil || event.Order.Status != models.OrderStatusPending || !needsAck(event.Order.Origin) {
			return ""
		}
		wasQuiet := len(h.unacked) == 0
		h.unacked[event.OrderID] = true
		if wasQuiet {
			return AlertStart
		}
	case EventOrderUpdated:
		if event.Order != nil && event.Order.Status == models.OrderStatusPending {
			return ""
		}
		fallthrough
	case EventOrderDeleted:
		if h.unacked[event.OrderID] {
			delete(h.unacked, event.OrderID)
			if len(h.unacked) == 0 {
				return AlertStop
			}
		}
	}
	return ""
}

func needsAck(origin models.OrderOrigin) bool {
	return origin == models.OriginPublicMenu || origin == models.OriginWhatsApp
}

func (h *Hub) push(event Event) {
	select {
	case h.inbound <- event:
	default:
		log.Println("realtime: event queue full, dropping event")
	}
}

func (h *Hub) deliver(event Event) {
	event.Alert = h.applyAlert(event)

	h.mu.Lock()
	var slow []*Session
	for session := range h.sessions {
		select {
		case session.events <- event:
		default:
			slow = append(slow, session)
		}
	}
	h.mu.Unlock()

	for _, session := range slow {
		log.Println("realtime: session too slow, dropping connection")
		h.unsubscribe(session)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for session := range h.sessions {
		if !session.closed {
			session.closed = true
			close(session.events)
		}
		delete(h.sessions, session)
	}
}
