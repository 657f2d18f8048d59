package fanout

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/graphsync/pkg/observability"
)

// ErrClosed is returned by [Hub.Subscribe] and [Hub.Attach] after
// [Hub.Shutdown].
var ErrClosed = errors.New("fanout: hub closed")

// Subscriber receives serialized events. Send must not block for long: the
// hub calls it for every subscriber in turn. A Send error removes the
// subscriber from the hub and closes it.
type Subscriber interface {
	Send(msg []byte) error
	Close() error
}

// Handle identifies a registration with a [Hub].
type Handle string

// Hub distributes events to live subscribers and attached sinks.
//
// Subscribers are the clients counted by [Hub.Count]; a failing subscriber is
// dropped. Sinks are out-of-process mirrors: they receive the same bytes but
// are never counted and never dropped for a failed send.
//
// Broadcasts are serialized, so every subscriber observes events in the order
// Broadcast was called. Hub is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Handle]Subscriber
	sinks  []sink
	closed bool

	sendMu sync.Mutex // serializes Broadcast
	logger *log.Logger
}

type sink struct {
	name string
	s    Subscriber
}

type target struct {
	h Handle
	s Subscriber
}

// NewHub creates a hub. A nil logger uses log.Default().
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subs:   make(map[Handle]Subscriber),
		logger: logger,
	}
}

// Subscribe sends the connected acknowledgement to s and registers it. If the
// acknowledgement cannot be sent, s is closed and not registered.
func (h *Hub) Subscribe(s Subscriber) (Handle, error) {
	if h.isClosed() {
		return "", ErrClosed
	}

	ack, err := Connected().Marshal()
	if err != nil {
		return "", fmt.Errorf("encode ack: %w", err)
	}
	if err := s.Send(ack); err != nil {
		s.Close()
		return "", fmt.Errorf("send ack: %w", err)
	}

	handle := Handle(uuid.NewString())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Close()
		return "", ErrClosed
	}
	h.subs[handle] = s
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", "subscriber", handle, "total", total)
	observability.Fanout().OnSubscribe(total)
	return handle, nil
}

// Unsubscribe removes and closes the subscriber. It reports whether the
// handle was registered; unknown handles are a no-op.
func (h *Hub) Unsubscribe(handle Handle) bool {
	return h.remove(handle, "closed")
}

func (h *Hub) remove(handle Handle, reason string) bool {
	h.mu.Lock()
	s, ok := h.subs[handle]
	if ok {
		delete(h.subs, handle)
	}
	total := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	h.logger.Debug("subscriber removed", "subscriber", handle, "reason", reason, "total", total)
	observability.Fanout().OnUnsubscribe(total, reason)
	return true
}

// Attach registers a sink that mirrors every broadcast. Sinks are closed on
// [Hub.Shutdown].
func (h *Hub) Attach(name string, s Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.sinks = append(h.sinks, sink{name: name, s: s})
	return nil
}

// Broadcast encodes ev once and delivers it to every subscriber and sink.
// Subscribers whose Send fails are logged, removed and closed. It returns
// the number of subscribers the event was delivered to.
func (h *Hub) Broadcast(ev Event) int {
	msg, err := ev.Marshal()
	if err != nil {
		h.logger.Error("encode event", "type", ev.Type, "err", err)
		return 0
	}
	return h.BroadcastRaw(ev.Type, msg)
}

// BroadcastRaw delivers an already encoded event. eventType is used for
// logging and metrics only.
func (h *Hub) BroadcastRaw(eventType string, msg []byte) int {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]target, 0, len(h.subs))
	for handle, s := range h.subs {
		targets = append(targets, target{handle, s})
	}
	sinks := append([]sink(nil), h.sinks...)
	h.mu.RUnlock()

	delivered := 0
	var failed []Handle
	for _, t := range targets {
		if err := t.s.Send(msg); err != nil {
			h.logger.Warn("send to subscriber failed, dropping it", "subscriber", t.h, "type", eventType, "err", err)
			failed = append(failed, t.h)
			continue
		}
		delivered++
	}
	for _, sk := range sinks {
		if err := sk.s.Send(msg); err != nil {
			h.logger.Warn("send to mirror failed", "mirror", sk.name, "type", eventType, "err", err)
		}
	}

	for _, handle := range failed {
		h.remove(handle, "send_failed")
	}

	observability.Fanout().OnBroadcast(eventType, delivered, len(failed))
	return delivered
}

// Count returns the number of registered subscribers. Sinks are not counted.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown closes every subscriber and sink and rejects further
// registrations. It is safe to call more than once.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	sinks := h.sinks
	h.subs = make(map[Handle]Subscriber)
	h.sinks = nil
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	for _, sk := range sinks {
		if err := sk.s.Close(); err != nil {
			h.logger.Warn("close mirror", "mirror", sk.name, "err", err)
		}
	}
	if len(subs) > 0 {
		observability.Fanout().OnUnsubscribe(0, "shutdown")
	}
	h.logger.Debug("hub shut down", "subscribers", len(subs), "mirrors", len(sinks))
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
