package fanout

import (
	"encoding/json"

	"github.com/matzehuels/graphsync/pkg/graph"
)

// Event types pushed to subscribers.
const (
	TypeConnected     = "connected"
	TypeNodeAdd       = "node:add"
	TypeNodeUpdate    = "node:update"
	TypeNodeRemove    = "node:remove"
	TypeEdgeAdd       = "edge:add"
	TypeEdgeRemove    = "edge:remove"
	TypeGraphReplaced = "graph:replaced"
)

// ConnectedMessage is the text of the acknowledgement sent on subscribe.
const ConnectedMessage = "connected to graph sync"

// Event is one message on the event channel. Only the fields relevant to
// Type are set; the rest are omitted on the wire.
type Event struct {
	Type string `json:"type" bson:"type"`

	Node  *graph.Node      `json:"node,omitempty" bson:"node,omitempty"`
	ID    string           `json:"id,omitempty" bson:"id,omitempty"`
	Patch *graph.NodePatch `json:"patch,omitempty" bson:"patch,omitempty"`
	Edge  *graph.Edge      `json:"edge,omitempty" bson:"edge,omitempty"`

	Message string `json:"message,omitempty" bson:"message,omitempty"`

	NodeCount *int `json:"nodeCount,omitempty" bson:"node_count,omitempty"`
	EdgeCount *int `json:"edgeCount,omitempty" bson:"edge_count,omitempty"`
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Connected builds the acknowledgement sent to a new subscriber.
func Connected() Event {
	return Event{Type: TypeConnected, Message: ConnectedMessage}
}

// NodeAdded carries the full stored node, position included.
func NodeAdded(n graph.Node) Event {
	return Event{Type: TypeNodeAdd, Node: &n}
}

// NodeUpdated carries only the fields the client supplied.
func NodeUpdated(p graph.NodePatch) Event {
	return Event{Type: TypeNodeUpdate, ID: p.ID, Patch: &p}
}

// NodeRemoved carries the removed id.
func NodeRemoved(id string) Event {
	return Event{Type: TypeNodeRemove, ID: id}
}

// EdgeAdded carries the created edge.
func EdgeAdded(e graph.Edge) Event {
	return Event{Type: TypeEdgeAdd, Edge: &e}
}

// EdgeRemoved carries the edge as the client named it.
func EdgeRemoved(e graph.Edge) Event {
	return Event{Type: TypeEdgeRemove, Edge: &e}
}

// GraphReplaced announces a bulk sync. Subscribers should refetch the graph.
func GraphReplaced(nodes, edges int) Event {
	return Event{Type: TypeGraphReplaced, NodeCount: &nodes, EdgeCount: &edges}
}
