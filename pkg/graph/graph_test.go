package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNodePatchDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, p NodePatch)
	}{
		{
			name:  "NumericID",
			input: `{"id": 42, "title": "x"}`,
			check: func(t *testing.T, p NodePatch) {
				if p.ID != "42" {
					t.Errorf("id = %q, want 42", p.ID)
				}
			},
		},
		{
			name:  "NumericPriority",
			input: `{"id": "1", "priority": 3, "importance": "high"}`,
			check: func(t *testing.T, p NodePatch) {
				if p.Priority == nil || *p.Priority != "3" {
					t.Errorf("priority = %v, want 3", p.Priority)
				}
				if p.Importance == nil || *p.Importance != "high" {
					t.Errorf("importance = %v, want high", p.Importance)
				}
			},
		},
		{
			name:  "AbsentFieldsAreNil",
			input: `{"id": "1", "status": "open"}`,
			check: func(t *testing.T, p NodePatch) {
				if p.Title != nil || p.X != nil || p.Kind != nil {
					t.Errorf("absent fields should be nil: %+v", p)
				}
				if p.Status == nil || *p.Status != StatusOpen {
					t.Errorf("status = %v, want open", p.Status)
				}
			},
		},
		{
			name:  "TypeMapsToKind",
			input: `{"id": "1", "type": "note", "updatedAt": "2024-01-01T00:00:00Z"}`,
			check: func(t *testing.T, p NodePatch) {
				if p.Kind == nil || *p.Kind != KindNote {
					t.Errorf("kind = %v, want note", p.Kind)
				}
				if p.UpdatedAt == nil || *p.UpdatedAt != "2024-01-01T00:00:00Z" {
					t.Errorf("updatedAt = %v", p.UpdatedAt)
				}
			},
		},
		{
			name:  "UnknownKeysIgnored",
			input: `{"id": "1", "colour": "red", "tags": [1, 2]}`,
			check: func(t *testing.T, p NodePatch) {
				if p.ID != "1" {
					t.Errorf("id = %q, want 1", p.ID)
				}
			},
		},
		{
			name:  "ZeroPositionIsSupplied",
			input: `{"id": "1", "x": 0, "y": 0}`,
			check: func(t *testing.T, p NodePatch) {
				if !p.HasPosition() {
					t.Error("x=0, y=0 should count as a supplied position")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p NodePatch
			if err := json.Unmarshal([]byte(tt.input), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestNodePatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		patch   NodePatch
		wantErr error
	}{
		{"Valid", NodePatch{ID: "1", Status: ptr(StatusArchived), Kind: ptr(KindTask)}, nil},
		{"EmptyID", NodePatch{}, ErrInvalidNodeID},
		{"BadStatus", NodePatch{ID: "1", Status: ptr(Status("done"))}, ErrInvalidStatus},
		{"BadKind", NodePatch{ID: "1", Kind: ptr(Kind("epic"))}, ErrInvalidKind},
		{"OnlyX", NodePatch{ID: "1", X: ptr(1.0)}, ErrPartialPosition},
		{"NaN", NodePatch{ID: "1", X: ptr(math.NaN()), Y: ptr(1.0)}, ErrInvalidPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScalarRejectsObjects(t *testing.T) {
	var s Scalar
	if err := json.Unmarshal([]byte(`{"a":1}`), &s); err == nil {
		t.Error("expected error for object input")
	}
	if err := json.Unmarshal([]byte(`true`), &s); err != nil || s != "true" {
		t.Errorf("bool input: s = %q, err = %v", s, err)
	}
}

func TestEdgeDecodeNumericIDs(t *testing.T) {
	var e Edge
	if err := json.Unmarshal([]byte(`{"source": 1, "target": "2"}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Source != "1" || e.Target != "2" {
		t.Errorf("edge = %+v, want {1 2}", e)
	}
}

func TestWriteGraphEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGraph(Graph{}, &buf); err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"nodes": []`) || !strings.Contains(out, `"edges": []`) {
		t.Errorf("empty graph should encode empty arrays, got %s", out)
	}
}

func TestReadGraph(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNodes int
		wantEdges int
		wantErr   bool
	}{
		{
			name:      "Simple",
			input:     `{"nodes":[{"id":"a","x":1,"y":2},{"id":"b"}],"edges":[{"source":"a","target":"b"}]}`,
			wantNodes: 2,
			wantEdges: 1,
		},
		{
			name:  "MissingLists",
			input: `{}`,
		},
		{
			name:    "InvalidJSON",
			input:   `{nodes:`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ReadGraph(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadGraph() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(g.Nodes) != tt.wantNodes || len(g.Edges) != tt.wantEdges {
				t.Errorf("got %d nodes, %d edges; want %d, %d", len(g.Nodes), len(g.Edges), tt.wantNodes, tt.wantEdges)
			}
			if g.Nodes == nil || g.Edges == nil {
				t.Error("ReadGraph should return non-nil slices")
			}
		})
	}
}

func TestGraphFileRoundTripIntoStore(t *testing.T) {
	src := newTestStore()
	src.Upsert(NodePatch{ID: "a", Title: ptr("A"), X: ptr(10.0), Y: ptr(20.0)})
	src.Upsert(NodePatch{ID: "b", Status: ptr(StatusCompleted)})
	src.AddEdge("a", "b")

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := WriteGraphFile(src.All(), path); err != nil {
		t.Fatalf("WriteGraphFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	g, err := ReadGraphFile(path)
	if err != nil {
		t.Fatalf("ReadGraphFile: %v", err)
	}

	dst := newTestStore()
	stats := Load(dst, g)
	if stats.Nodes != 2 || stats.Edges != 1 {
		t.Errorf("stats = %+v, want 2 nodes, 1 edge", stats)
	}
	a, _ := dst.Node("a")
	if a.Title != "A" || a.X != 10 || a.Y != 20 {
		t.Errorf("node a = %+v, want title A at (10, 20)", a)
	}
}

func TestReadGraphFileMissing(t *testing.T) {
	if _, err := ReadGraphFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
