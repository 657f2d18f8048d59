package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/graph"
)

// Mutation types accepted by [Gateway.Apply].
const (
	TypeNodeAdd    = "node:add"
	TypeNodeUpdate = "node:update"
	TypeNodeRemove = "node:remove"
	TypeEdgeAdd    = "edge:add"
	TypeEdgeRemove = "edge:remove"
	TypeBulkSync   = "bulk:sync"
)

// Mutation is one sync request: an event type and its raw JSON payload.
type Mutation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Result reports what [Gateway.Apply] did. Applied is false when the
// mutation was accepted but changed nothing, such as an edge whose endpoint
// does not exist.
type Result struct {
	Type    string `json:"type"`
	Applied bool   `json:"applied"`
}

// NewMutation builds a mutation by encoding data as its payload.
func NewMutation(mutationType string, data any) (Mutation, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Mutation{}, errors.Wrap(errors.ErrCodeInvalidPayload, err, "encode %s payload", mutationType)
	}
	return Mutation{Type: mutationType, Data: raw}, nil
}

// Types returns every mutation type the gateway handles.
func Types() []string {
	return []string{TypeNodeAdd, TypeNodeUpdate, TypeNodeRemove, TypeEdgeAdd, TypeEdgeRemove, TypeBulkSync}
}

// Known reports whether t is a mutation type the gateway handles.
func Known(t string) bool {
	switch t {
	case TypeNodeAdd, TypeNodeUpdate, TypeNodeRemove, TypeEdgeAdd, TypeEdgeRemove, TypeBulkSync:
		return true
	}
	return false
}

// =============================================================================
// Payloads
// =============================================================================

type removePayload struct {
	ID graph.Scalar `json:"id"`
}

type bulkPayload struct {
	Nodes []graph.NodePatch `json:"nodes"`
	Edges []graph.Edge      `json:"edges"`
}

// decode unmarshals a payload, rejecting an absent or null body.
func decode(mutationType string, data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New(errors.ErrCodeInvalidPayload, "%s requires a data object", mutationType)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, err, "malformed %s payload", mutationType)
	}
	return nil
}

func decodeNode(mutationType string, data json.RawMessage) (graph.NodePatch, error) {
	var p graph.NodePatch
	if err := decode(mutationType, data, &p); err != nil {
		return p, err
	}
	if err := validatePatch(p); err != nil {
		return p, err
	}
	return p, nil
}

func validatePatch(p graph.NodePatch) error {
	if err := errors.ValidateNodeID(p.ID); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, err, "invalid node")
	}
	if err := p.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, err, "invalid node %q", p.ID)
	}
	return nil
}

func decodeEdge(mutationType string, data json.RawMessage) (graph.Edge, error) {
	var e graph.Edge
	if err := decode(mutationType, data, &e); err != nil {
		return e, err
	}
	if e.Source == "" || e.Target == "" {
		return e, errors.New(errors.ErrCodeInvalidPayload, "%s requires source and target", mutationType)
	}
	return e, nil
}

func decodeRemove(data json.RawMessage) (string, error) {
	var p removePayload
	if err := decode(TypeNodeRemove, data, &p); err != nil {
		return "", err
	}
	if err := errors.ValidateNodeID(string(p.ID)); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPayload, err, "invalid node")
	}
	return string(p.ID), nil
}

func decodeBulk(data json.RawMessage) (bulkPayload, error) {
	var p bulkPayload
	if err := decode(TypeBulkSync, data, &p); err != nil {
		return p, err
	}
	for i, n := range p.Nodes {
		if err := validatePatch(n); err != nil {
			return p, errors.Wrap(errors.ErrCodeInvalidPayload, err, "nodes[%d]", i)
		}
	}
	return p, nil
}
