package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/graph"
)

// recorder is an in-memory subscriber. failAfter < 0 never fails.
type recorder struct {
	mu        sync.Mutex
	msgs      [][]byte
	failAfter int
	closed    bool
}

func newRecorder() *recorder { return &recorder{failAfter: -1} }

func (r *recorder) Send(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSubscriberClosed
	}
	if r.failAfter >= 0 && len(r.msgs) >= r.failAfter {
		return errors.New("broken pipe")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) types(t *testing.T) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		var ev Event
		if err := json.Unmarshal(m, &ev); err != nil {
			t.Fatalf("bad message %s: %v", m, err)
		}
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestHub() *Hub { return NewHub(log.New(io.Discard)) }

func TestSubscribeSendsAck(t *testing.T) {
	h := newTestHub()
	r := newRecorder()

	if _, err := h.Subscribe(r); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(r.msgs[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeConnected || ev.Message == "" {
		t.Errorf("ack = %+v, want connected with a message", ev)
	}
	if h.Count() != 1 {
		t.Errorf("Count = %d, want 1", h.Count())
	}
}

func TestSubscribeAckFailure(t *testing.T) {
	h := newTestHub()
	r := &recorder{failAfter: 0}

	if _, err := h.Subscribe(r); err == nil {
		t.Fatal("expected error when the ack cannot be sent")
	}
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
	if !r.isClosed() {
		t.Error("rejected subscriber should be closed")
	}
}

func TestBroadcastDropsFailingSubscriber(t *testing.T) {
	h := newTestHub()
	a, b, c := newRecorder(), newRecorder(), newRecorder()
	b.failAfter = 1 // accepts the ack, then fails

	for _, r := range []*recorder{a, b, c} {
		if _, err := h.Subscribe(r); err != nil {
			t.Fatal(err)
		}
	}

	got := h.Broadcast(NodeRemoved("1"))
	if got != 2 {
		t.Errorf("delivered = %d, want 2", got)
	}
	if h.Count() != 2 {
		t.Errorf("Count = %d, want 2", h.Count())
	}
	if !b.isClosed() {
		t.Error("failing subscriber should be closed")
	}

	// the failed subscriber is gone for the next event
	if got := h.Broadcast(NodeRemoved("2")); got != 2 {
		t.Errorf("second delivered = %d, want 2", got)
	}
	for name, r := range map[string]*recorder{"a": a, "c": c} {
		if n := len(r.types(t)); n != 3 {
			t.Errorf("%s received %d messages, want 3", name, n)
		}
	}
}

func TestBroadcastNoSubscribers(t *testing.T) {
	if got := newTestHub().Broadcast(NodeRemoved("x")); got != 0 {
		t.Errorf("delivered = %d, want 0", got)
	}
}

func TestBroadcastOrder(t *testing.T) {
	h := newTestHub()
	r := newRecorder()
	h.Subscribe(r)

	want := []string{TypeConnected}
	for i := 0; i < 50; i++ {
		h.Broadcast(NodeRemoved(fmt.Sprint(i)))
		want = append(want, TypeNodeRemove)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) != len(want) {
		t.Fatalf("received %d messages, want %d", len(r.msgs), len(want))
	}
	for i, m := range r.msgs[1:] {
		var ev Event
		json.Unmarshal(m, &ev)
		if ev.ID != fmt.Sprint(i) {
			t.Fatalf("message %d has id %s, want %d", i, ev.ID, i)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	h := newTestHub()
	r := newRecorder()
	handle, _ := h.Subscribe(r)

	if !h.Unsubscribe(handle) {
		t.Error("Unsubscribe = false, want true")
	}
	if h.Unsubscribe(handle) {
		t.Error("second Unsubscribe should be a no-op")
	}
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
	if !r.isClosed() {
		t.Error("unsubscribed subscriber should be closed")
	}
}

func TestSinksMirrorButDoNotCount(t *testing.T) {
	h := newTestHub()
	sub, mirror := newRecorder(), newRecorder()
	broken := &recorder{failAfter: 0}

	h.Subscribe(sub)
	if err := h.Attach("mirror", mirror); err != nil {
		t.Fatal(err)
	}
	h.Attach("broken", broken)

	if got := h.Broadcast(EdgeAdded(graph.Edge{Source: "a", Target: "b"})); got != 1 {
		t.Errorf("delivered = %d, want 1 (sinks are not counted)", got)
	}
	if h.Count() != 1 {
		t.Errorf("Count = %d, want 1", h.Count())
	}
	if got := mirror.types(t); len(got) != 1 || got[0] != TypeEdgeAdd {
		t.Errorf("mirror received %v, want [edge:add]", got)
	}
	if broken.isClosed() {
		t.Error("failing sinks must not be dropped")
	}
}

func TestShutdown(t *testing.T) {
	h := newTestHub()
	a, b, mirror := newRecorder(), newRecorder(), newRecorder()
	h.Subscribe(a)
	h.Subscribe(b)
	h.Attach("mirror", mirror)

	h.Shutdown()
	h.Shutdown() // idempotent

	for _, r := range []*recorder{a, b, mirror} {
		if !r.isClosed() {
			t.Error("Shutdown should close every subscriber and sink")
		}
	}
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
	if _, err := h.Subscribe(newRecorder()); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Shutdown = %v, want ErrClosed", err)
	}
	if err := h.Attach("late", newRecorder()); !errors.Is(err, ErrClosed) {
		t.Errorf("Attach after Shutdown = %v, want ErrClosed", err)
	}
	if got := h.Broadcast(NodeRemoved("x")); got != 0 {
		t.Errorf("Broadcast after Shutdown = %d, want 0", got)
	}
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				handle, err := h.Subscribe(newRecorder())
				if err != nil {
					t.Error(err)
					return
				}
				if j%2 == 0 {
					h.Unsubscribe(handle)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.Broadcast(NodeRemoved("x"))
			}
		}()
	}
	wg.Wait()

	if got := h.Count(); got != 80 {
		t.Errorf("Count = %d, want 80", got)
	}
}

func TestEventWireShapes(t *testing.T) {
	title := "t"
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"Connected", Connected(), `{"type":"connected","message":"connected to graph sync"}`},
		{"NodeRemove", NodeRemoved("7"), `{"type":"node:remove","id":"7"}`},
		{"EdgeRemove", EdgeRemoved(graph.Edge{Source: "1", Target: "2"}), `{"type":"edge:remove","edge":{"source":"1","target":"2"}}`},
		{"NodeUpdate", NodeUpdated(graph.NodePatch{ID: "7", Title: &title}), `{"type":"node:update","id":"7","patch":{"id":"7","title":"t"}}`},
		{"GraphReplacedEmpty", GraphReplaced(0, 0), `{"type":"graph:replaced","nodeCount":0,"edgeCount":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ev.Marshal()
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}
