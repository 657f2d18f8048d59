package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidNodeID is returned by [NodePatch.Validate] when the node ID is
	// empty. Every node needs a stable, externally assigned identifier.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrInvalidStatus is returned by [NodePatch.Validate] for a status outside
	// open, completed and archived.
	ErrInvalidStatus = errors.New("invalid node status")

	// ErrInvalidKind is returned by [NodePatch.Validate] for a kind outside
	// task and note.
	ErrInvalidKind = errors.New("invalid node type")

	// ErrPartialPosition is returned by [NodePatch.Validate] when only one of
	// x and y is supplied. Positions are set as a whole or not at all.
	ErrPartialPosition = errors.New("position requires both x and y")

	// ErrInvalidPosition is returned by [NodePatch.Validate] when a coordinate
	// is NaN or infinite.
	ErrInvalidPosition = errors.New("position must be finite")
)

// =============================================================================
// Enumerations
// =============================================================================

// Status is the lifecycle state of the entity a node mirrors.
type Status string

// Node statuses.
const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is empty or one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case "", StatusOpen, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Kind distinguishes tasks from notes. It travels as "type" on the wire.
type Kind string

// Node kinds.
const (
	KindTask Kind = "task"
	KindNote Kind = "note"
)

// Valid reports whether k is empty or one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case "", KindTask, KindNote:
		return true
	}
	return false
}

// Scalar is a string that also accepts bare JSON numbers and booleans.
// The collaborating application sends ids, priorities and importances as
// either strings or numbers depending on the column type; both are stored in
// their textual form so "3" and 3 compare equal.
type Scalar string

// UnmarshalJSON accepts a JSON string, number, boolean or null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	case data[0] == '{' || data[0] == '[':
		return fmt.Errorf("expected string or number, got %s", data[:1])
	default:
		*s = Scalar(data)
		return nil
	}
}

// =============================================================================
// Node
// =============================================================================

// Position is a point on the layout canvas.
type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Node is a stored graph vertex. Stored nodes always carry a position.
type Node struct {
	ID         string `json:"id" bson:"id"`
	Title      string `json:"title,omitempty" bson:"title,omitempty"`
	Status     Status `json:"status,omitempty" bson:"status,omitempty"`
	Priority   Scalar `json:"priority,omitempty" bson:"priority,omitempty"`
	Importance Scalar `json:"importance,omitempty" bson:"importance,omitempty"`
	Kind       Kind   `json:"type,omitempty" bson:"type,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty" bson:"updated_at,omitempty"`

	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Position returns the node's canvas coordinates.
func (n Node) Position() Position { return Position{X: n.X, Y: n.Y} }

// DisplayLabel returns the title if set, otherwise the ID.
func (n Node) DisplayLabel() string {
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

// UnmarshalJSON decodes a node, coercing a numeric id to its string form.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	aux := struct {
		ID Scalar `json:"id"`
		*alias
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ID = string(aux.ID)
	return nil
}

// NodePatch is an incoming node payload. Nil fields were absent on the wire
// and leave the stored value untouched when merged.
type NodePatch struct {
	ID         string   `json:"id" bson:"id"`
	Title      *string  `json:"title,omitempty" bson:"title,omitempty"`
	Status     *Status  `json:"status,omitempty" bson:"status,omitempty"`
	Priority   *Scalar  `json:"priority,omitempty" bson:"priority,omitempty"`
	Importance *Scalar  `json:"importance,omitempty" bson:"importance,omitempty"`
	Kind       *Kind    `json:"type,omitempty" bson:"type,omitempty"`
	UpdatedAt  *string  `json:"updatedAt,omitempty" bson:"updated_at,omitempty"`
	X          *float64 `json:"x,omitempty" bson:"x,omitempty"`
	Y          *float64 `json:"y,omitempty" bson:"y,omitempty"`
}

// UnmarshalJSON decodes a patch, coercing a numeric id to its string form.
// Keys other than the well-known node attributes are ignored.
func (p *NodePatch) UnmarshalJSON(data []byte) error {
	type alias NodePatch
	aux := struct {
		ID Scalar `json:"id"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = string(aux.ID)
	return nil
}

// HasPosition reports whether both coordinates were supplied.
func (p NodePatch) HasPosition() bool { return p.X != nil && p.Y != nil }

// Validate checks the patch before it reaches a [Store].
func (p NodePatch) Validate() error {
	if p.ID == "" {
		return ErrInvalidNodeID
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, *p.Kind)
	}
	if (p.X == nil) != (p.Y == nil) {
		return ErrPartialPosition
	}
	if p.HasPosition() && (!finite(*p.X) || !finite(*p.Y)) {
		return ErrInvalidPosition
	}
	return nil
}

// merge copies every supplied field onto n. Position is handled by the store.
func (p NodePatch) merge(n *Node) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Status != nil {
		n.Status = *p.Status
	}
	if p.Priority != nil {
		n.Priority = *p.Priority
	}
	if p.Importance != nil {
		n.Importance = *p.Importance
	}
	if p.Kind != nil {
		n.Kind = *p.Kind
	}
	if p.UpdatedAt != nil {
		n.UpdatedAt = *p.UpdatedAt
	}
	if p.HasPosition() {
		n.X, n.Y = *p.X, *p.Y
	}
}

// PatchFromNode builds a patch that sets every attribute of n, including its
// position.
func PatchFromNode(n Node) NodePatch {
	return NodePatch{
		ID:         n.ID,
		Title:      &n.Title,
		Status:     &n.Status,
		Priority:   &n.Priority,
		Importance: &n.Importance,
		Kind:       &n.Kind,
		UpdatedAt:  &n.UpdatedAt,
		X:          &n.X,
		Y:          &n.Y,
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// =============================================================================
// Edge
// =============================================================================

// Edge is an undirected relationship between two node ids. Source and Target
// keep the orientation the edge was created with but carry no meaning:
// (a, b) and (b, a) are the same edge.
type Edge struct {
	Source string `json:"source" bson:"source"`
	Target string `json:"target" bson:"target"`
}

// UnmarshalJSON decodes an edge, coercing numeric ids to strings.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var aux struct {
		Source Scalar `json:"source"`
		Target Scalar `json:"target"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Source, e.Target = string(aux.Source), string(aux.Target)
	return nil
}

// Touches reports whether id is one of the edge's endpoints.
func (e Edge) Touches(id string) bool { return e.Source == id || e.Target == id }

// key returns the orientation-free identity of the edge.
func (e Edge) key() edgeKey { return newEdgeKey(e.Source, e.Target) }

// edgeKey is an endpoint pair in lexical order.
type edgeKey struct{ a, b string }

func newEdgeKey(x, y string) edgeKey {
	if y < x {
		x, y = y, x
	}
	return edgeKey{a: x, b: y}
}

// =============================================================================
// Graph
// =============================================================================

// Graph is the serialized snapshot of a store or one of its subgraphs.
// Both slices are non-nil so they encode as [] rather than null.
type Graph struct {
	Nodes []Node `json:"nodes" bson:"nodes"`
	Edges []Edge `json:"edges" bson:"edges"`
}

// Empty returns a graph with no nodes and no edges.
func Empty() Graph { return Graph{Nodes: []Node{}, Edges: []Edge{}} }

// NodeIDs returns the ids of g's nodes in order.
func (g Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}
