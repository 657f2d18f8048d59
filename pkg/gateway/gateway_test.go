package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/fanout"
	"github.com/matzehuels/graphsync/pkg/graph"
	"github.com/matzehuels/graphsync/pkg/observability"
)

// recorder is an in-memory subscriber that keeps every event except the
// connected acknowledgement.
type recorder struct {
	mu   sync.Mutex
	evts []fanout.Event
}

func (r *recorder) Send(msg []byte) error {
	var ev fanout.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return err
	}
	if ev.Type == fanout.TypeConnected {
		return nil
	}
	r.mu.Lock()
	r.evts = append(r.evts, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) events() []fanout.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fanout.Event(nil), r.evts...)
}

// countingLayout records calls and optionally panics.
type countingLayout struct {
	mu    sync.Mutex
	calls int
	panic bool
}

func (l *countingLayout) Apply(s *graph.Store, _ int) int {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.panic {
		panic("layout exploded")
	}
	g := s.All()
	pos := make(map[string]graph.Position, len(g.Nodes))
	for i, n := range g.Nodes {
		pos[n.ID] = graph.Position{X: float64(10 * (i + 1)), Y: 50}
	}
	return s.SetPositions(pos)
}

func (l *countingLayout) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fixture struct {
	gw     *Gateway
	rec    *recorder
	layout *countingLayout
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := log.New(io.Discard)
	store := graph.NewStore(graph.Options{Seed: 1, Logger: logger})
	hub := fanout.NewHub(logger)
	t.Cleanup(hub.Shutdown)

	rec := &recorder{}
	if _, err := hub.Subscribe(rec); err != nil {
		t.Fatal(err)
	}
	lay := &countingLayout{}
	gw := New(store, hub, Options{Layout: lay, Logger: logger})
	return fixture{gw: gw, rec: rec, layout: lay}
}

func mustApply(t *testing.T, gw *Gateway, typ, data string) Result {
	t.Helper()
	res, err := gw.Apply(context.Background(), Mutation{Type: typ, Data: json.RawMessage(data)})
	if err != nil {
		t.Fatalf("Apply(%s, %s) error: %v", typ, data, err)
	}
	return res
}

func TestApplyNodeAdd(t *testing.T) {
	f := newFixture(t)

	res := mustApply(t, f.gw, TypeNodeAdd, `{"id": 7, "title": "write docs", "status": "open", "priority": 2}`)
	if !res.Applied || res.Type != TypeNodeAdd {
		t.Errorf("Result = %+v, want applied node:add", res)
	}

	n, ok := f.gw.Store().Node("7")
	if !ok {
		t.Fatal("node 7 not stored")
	}
	if n.Title != "write docs" || n.Priority != "2" {
		t.Errorf("stored node = %+v", n)
	}

	evts := f.rec.events()
	if len(evts) != 1 || evts[0].Type != fanout.TypeNodeAdd {
		t.Fatalf("events = %+v, want one node:add", evts)
	}
	if evts[0].Node == nil || evts[0].Node.ID != "7" {
		t.Fatalf("node:add payload = %+v", evts[0].Node)
	}
	if evts[0].Node.X != n.X || evts[0].Node.Y != n.Y {
		t.Error("node:add should carry the assigned position")
	}
}

func TestApplyNodeUpdateSendsPatch(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "a", "title": "old", "status": "open", "x": 1, "y": 2}`)
	mustApply(t, f.gw, TypeNodeUpdate, `{"id": "a", "status": "completed"}`)

	n, _ := f.gw.Store().Node("a")
	if n.Title != "old" || n.Status != graph.StatusCompleted || n.X != 1 || n.Y != 2 {
		t.Errorf("merged node = %+v", n)
	}

	evts := f.rec.events()
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	up := evts[1]
	if up.Type != fanout.TypeNodeUpdate || up.ID != "a" || up.Patch == nil {
		t.Fatalf("update event = %+v", up)
	}
	if up.Patch.Title != nil || up.Patch.Status == nil || *up.Patch.Status != graph.StatusCompleted {
		t.Errorf("patch should only carry supplied fields: %+v", up.Patch)
	}
}

func TestApplyNodeUpdateCreatesUnknown(t *testing.T) {
	f := newFixture(t)
	res := mustApply(t, f.gw, TypeNodeUpdate, `{"id": "new"}`)
	if !res.Applied {
		t.Error("update of unknown node should upsert")
	}
	if f.gw.Store().Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.gw.Store().Len())
	}
}

func TestApplyNodeRemoveCascades(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "a"}`)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "b"}`)
	mustApply(t, f.gw, TypeEdgeAdd, `{"source": "a", "target": "b"}`)

	if res := mustApply(t, f.gw, TypeNodeRemove, `{"id": "a"}`); !res.Applied {
		t.Error("removing a stored node should be applied")
	}
	if f.gw.Store().EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0 after cascade", f.gw.Store().EdgeCount())
	}
	if res := mustApply(t, f.gw, TypeNodeRemove, `{"id": "a"}`); res.Applied {
		t.Error("removing an unknown node should not be applied")
	}

	evts := f.rec.events()
	last := evts[len(evts)-1]
	if last.Type != fanout.TypeNodeRemove || last.ID != "a" {
		t.Errorf("last event = %+v, want node:remove a", last)
	}
}

func TestApplyEdgeAddMissingSource(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "b"}`)
	before := len(f.rec.events())

	res := mustApply(t, f.gw, TypeEdgeAdd, `{"source": "ghost", "target": "b"}`)
	if res.Applied {
		t.Error("edge:add with a missing source should not be applied")
	}
	if f.gw.Store().EdgeCount() != 0 {
		t.Error("edge should not be stored")
	}
	if got := len(f.rec.events()); got != before {
		t.Errorf("got %d new events, want none", got-before)
	}
}

func TestApplyEdgeAddOnce(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": 1}`)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": 2}`)

	tests := []struct {
		data    string
		applied bool
	}{
		{`{"source": 1, "target": 2}`, true},
		{`{"source": "2", "target": "1"}`, false},
		{`{"source": "1", "target": "1"}`, false},
	}
	for _, tt := range tests {
		if res := mustApply(t, f.gw, TypeEdgeAdd, tt.data); res.Applied != tt.applied {
			t.Errorf("edge:add %s applied = %v, want %v", tt.data, res.Applied, tt.applied)
		}
	}

	var adds int
	for _, ev := range f.rec.events() {
		if ev.Type == fanout.TypeEdgeAdd {
			adds++
			if ev.Edge.Source != "1" || ev.Edge.Target != "2" {
				t.Errorf("edge:add payload = %+v", ev.Edge)
			}
		}
	}
	if adds != 1 {
		t.Errorf("edge:add events = %d, want 1", adds)
	}
}

func TestApplyEdgeRemove(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "a"}`)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "b"}`)
	mustApply(t, f.gw, TypeEdgeAdd, `{"source": "a", "target": "b"}`)

	if res := mustApply(t, f.gw, TypeEdgeRemove, `{"source": "b", "target": "a"}`); !res.Applied {
		t.Error("reverse orientation should remove the edge")
	}
	if res := mustApply(t, f.gw, TypeEdgeRemove, `{"source": "a", "target": "b"}`); res.Applied {
		t.Error("second remove should be a no-op")
	}
	evts := f.rec.events()
	if last := evts[len(evts)-1]; last.Type != fanout.TypeEdgeRemove || last.Edge == nil {
		t.Errorf("last event = %+v, want edge:remove", last)
	}
}

func TestApplyBulkSync(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "stale"}`)

	res := mustApply(t, f.gw, TypeBulkSync, `{
		"nodes": [{"id": 1, "title": "a"}, {"id": 2}, {"id": 3}],
		"edges": [{"source": 1, "target": 2}, {"source": 2, "target": 3}, {"source": 3, "target": 99}]
	}`)
	if !res.Applied {
		t.Error("bulk:sync should be applied")
	}

	g := f.gw.Graph(context.Background())
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("graph = %d nodes, %d edges, want 3/2", len(g.Nodes), len(g.Edges))
	}
	if _, ok := f.gw.Store().Node("stale"); ok {
		t.Error("bulk:sync should replace existing nodes")
	}
	if f.layout.count() != 1 {
		t.Errorf("layout calls = %d, want 1", f.layout.count())
	}
	for _, n := range g.Nodes {
		if n.Y != 50 {
			t.Errorf("node %s not positioned by layout: %+v", n.ID, n)
		}
	}

	evts := f.rec.events()
	last := evts[len(evts)-1]
	if last.Type != fanout.TypeGraphReplaced {
		t.Fatalf("last event = %q, want graph:replaced", last.Type)
	}
	if *last.NodeCount != 3 || *last.EdgeCount != 2 {
		t.Errorf("graph:replaced counts = %d/%d, want 3/2", *last.NodeCount, *last.EdgeCount)
	}
	for _, ev := range evts[1:] {
		if ev.Type != fanout.TypeGraphReplaced {
			t.Errorf("bulk:sync should emit only graph:replaced, got %q", ev.Type)
		}
	}
}

func TestApplyBulkSyncLayoutRules(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		calls int
	}{
		{"Unpositioned", `{"nodes": [{"id": "a"}, {"id": "b"}], "edges": []}`, 1},
		{"OnePositioned", `{"nodes": [{"id": "a", "x": 5, "y": 6}, {"id": "b"}]}`, 0},
		{"Empty", `{"nodes": [], "edges": []}`, 0},
		{"MissingKeys", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mustApply(t, f.gw, TypeBulkSync, tt.data)
			if got := f.layout.count(); got != tt.calls {
				t.Errorf("layout calls = %d, want %d", got, tt.calls)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		data string
		code errors.Code
	}{
		{"UnknownType", "node:explode", `{"id": "a"}`, errors.ErrCodeUnknownMutation},
		{"EmptyType", "", `{}`, errors.ErrCodeUnknownMutation},
		{"NoData", TypeNodeAdd, ``, errors.ErrCodeInvalidPayload},
		{"NullData", TypeNodeAdd, `null`, errors.ErrCodeInvalidPayload},
		{"Malformed", TypeNodeAdd, `{"id": `, errors.ErrCodeInvalidPayload},
		{"MissingID", TypeNodeAdd, `{"title": "x"}`, errors.ErrCodeInvalidPayload},
		{"ObjectID", TypeNodeAdd, `{"id": {"a": 1}}`, errors.ErrCodeInvalidPayload},
		{"BadStatus", TypeNodeUpdate, `{"id": "a", "status": "done"}`, errors.ErrCodeInvalidPayload},
		{"BadKind", TypeNodeAdd, `{"id": "a", "type": "epic"}`, errors.ErrCodeInvalidPayload},
		{"PartialPosition", TypeNodeAdd, `{"id": "a", "x": 10}`, errors.ErrCodeInvalidPayload},
		{"RemoveNoID", TypeNodeRemove, `{}`, errors.ErrCodeInvalidPayload},
		{"EdgeNoTarget", TypeEdgeAdd, `{"source": "a"}`, errors.ErrCodeInvalidPayload},
		{"EdgeArray", TypeEdgeRemove, `["a", "b"]`, errors.ErrCodeInvalidPayload},
		{"BulkBadNode", TypeBulkSync, `{"nodes": [{"id": "a"}, {"id": ""}]}`, errors.ErrCodeInvalidPayload},
		{"BulkWrongShape", TypeBulkSync, `{"nodes": {}}`, errors.ErrCodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.gw.Apply(context.Background(), Mutation{Type: tt.typ, Data: json.RawMessage(tt.data)})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.GetCode(err); got != tt.code {
				t.Errorf("code = %v, want %v (%v)", got, tt.code, err)
			}
			if res.Applied {
				t.Error("rejected mutation reported as applied")
			}
			if f.gw.Store().Len() != 0 || len(f.rec.events()) != 0 {
				t.Error("rejected mutation changed the store or broadcast")
			}
		})
	}
}

func TestApplyRejectedBulkKeepsGraph(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "keep"}`)

	_, err := f.gw.Apply(context.Background(), Mutation{
		Type: TypeBulkSync,
		Data: json.RawMessage(`{"nodes": [{"id": "a", "status": "bogus"}]}`),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := f.gw.Store().Node("keep"); !ok {
		t.Error("a rejected bulk:sync must not clear the graph")
	}
}

func TestApplyRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.layout.panic = true

	_, err := f.gw.Apply(context.Background(), Mutation{Type: TypeBulkSync, Data: json.RawMessage(`{"nodes": [{"id": "a"}]}`)})
	if !errors.Is(err, errors.ErrCodeInternal) {
		t.Fatalf("err = %v, want INTERNAL_ERROR", err)
	}

	// the gateway lock must have been released
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.gw.Apply(context.Background(), Mutation{Type: TypeNodeAdd, Data: json.RawMessage(`{"id": "b"}`)}); err != nil {
			t.Errorf("Apply after panic: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway deadlocked after panic")
	}
}

func TestApplyConcurrentOrdering(t *testing.T) {
	f := newFixture(t)
	const workers, per = 8, 25

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range per {
				data := json.RawMessage(fmt.Sprintf(`{"id": "w%d-%d"}`, w, i))
				if _, err := f.gw.Apply(context.Background(), Mutation{Type: TypeNodeAdd, Data: data}); err != nil {
					t.Errorf("Apply: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	evts := f.rec.events()
	if len(evts) != workers*per {
		t.Fatalf("events = %d, want %d", len(evts), workers*per)
	}

	// per worker, events arrive in submission order
	last := make(map[int]int)
	for _, ev := range evts {
		var w, i int
		if _, err := fmt.Sscanf(ev.Node.ID, "w%d-%d", &w, &i); err != nil {
			t.Fatal(err)
		}
		if prev, ok := last[w]; ok && i <= prev {
			t.Errorf("worker %d: event %d after %d", w, i, prev)
		}
		last[w] = i
	}
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	mustApply(t, f.gw, TypeBulkSync, `{
		"nodes": [{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4}, {"id": 5}],
		"edges": [{"source": 1, "target": 2}, {"source": 2, "target": 3}, {"source": 3, "target": 4}, {"source": 4, "target": 5}]
	}`)

	tests := []struct {
		center string
		depth  int
		want   []string
	}{
		{"1", 1, []string{"1", "2"}},
		{"1", 2, []string{"1", "2", "3"}},
		{"3", 1, []string{"2", "3", "4"}},
		{"3", 0, []string{"3"}},
		{"nope", 2, []string{}},
	}
	for _, tt := range tests {
		got := f.gw.Subgraph(context.Background(), tt.center, tt.depth).NodeIDs()
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("Subgraph(%s, %d) = %v, want %v", tt.center, tt.depth, got, tt.want)
		}
	}

	h := f.gw.Health()
	if h.Status != "ok" || h.Nodes != 5 || h.Edges != 4 || h.Subscribers != 1 {
		t.Errorf("Health() = %+v", h)
	}
}

// TestRandomMutations drives random mutation sequences and checks the store
// invariants after each step.
func TestRandomMutations(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewPCG(42, 7))
	id := func() int { return rng.IntN(12) }

	for step := range 500 {
		var typ, data string
		switch rng.IntN(5) {
		case 0, 1:
			typ, data = TypeNodeAdd, fmt.Sprintf(`{"id": %d}`, id())
		case 2:
			typ, data = TypeNodeRemove, fmt.Sprintf(`{"id": %d}`, id())
		case 3:
			typ, data = TypeEdgeAdd, fmt.Sprintf(`{"source": %d, "target": %d}`, id(), id())
		case 4:
			typ, data = TypeEdgeRemove, fmt.Sprintf(`{"source": %d, "target": %d}`, id(), id())
		}
		mustApply(t, f.gw, typ, data)

		g := f.gw.Graph(context.Background())
		nodes := make(map[string]bool, len(g.Nodes))
		for _, n := range g.Nodes {
			nodes[n.ID] = true
		}
		seen := make(map[[2]string]bool)
		for _, e := range g.Edges {
			if !nodes[e.Source] || !nodes[e.Target] {
				t.Fatalf("step %d: dangling edge %+v", step, e)
			}
			if e.Source == e.Target {
				t.Fatalf("step %d: self loop %+v", step, e)
			}
			k := [2]string{min(e.Source, e.Target), max(e.Source, e.Target)}
			if seen[k] {
				t.Fatalf("step %d: duplicate edge %+v", step, e)
			}
			seen[k] = true
		}
	}
}

type mutationLog struct {
	observability.NoopGraphHooks
	mu      sync.Mutex
	applied map[string][]bool
	errs    int
}

func (m *mutationLog) OnMutation(_ context.Context, typ string, applied bool, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errs++
		return
	}
	m.applied[typ] = append(m.applied[typ], applied)
}

func TestApplyReportsHooks(t *testing.T) {
	hooks := &mutationLog{applied: make(map[string][]bool)}
	observability.SetGraphHooks(hooks)
	t.Cleanup(observability.Reset)

	f := newFixture(t)
	mustApply(t, f.gw, TypeNodeAdd, `{"id": "a"}`)
	mustApply(t, f.gw, TypeEdgeAdd, `{"source": "a", "target": "zz"}`)
	f.gw.Apply(context.Background(), Mutation{Type: "bogus"})

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if got := hooks.applied[TypeNodeAdd]; len(got) != 1 || !got[0] {
		t.Errorf("node:add hooks = %v, want [true]", got)
	}
	if got := hooks.applied[TypeEdgeAdd]; len(got) != 1 || got[0] {
		t.Errorf("edge:add hooks = %v, want [false]", got)
	}
	if hooks.errs != 1 {
		t.Errorf("error hooks = %d, want 1", hooks.errs)
	}
}

func TestKnownTypes(t *testing.T) {
	for _, typ := range Types() {
		if !Known(typ) {
			t.Errorf("Known(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"", "connected", "graph:replaced", "node:explode"} {
		if Known(typ) {
			t.Errorf("Known(%q) = true, want false", typ)
		}
	}
}
