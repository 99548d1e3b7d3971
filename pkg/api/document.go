package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// ParseFlowDocument decodes the external flow document format:
//
//	{
//	  "name": "...",
//	  "description": "...",
//	  "variables": { ... },
//	  "nodes": [ {"id": "...", "type": "...", "config": {...}}, ... ],
//	  "edges": [ {"from": "...", "to": "...", "guard": "..."}, ... ]
//	}
//
// This is the one externally bit-exact contract: documents produced by
// editors and loaders in other implementations must parse identically.
// Structural validation (acyclicity and the rest) happens at
// registration time, not here.
func ParseFlowDocument(data []byte) (FlowDefinition, error) {
	var def FlowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return FlowDefinition{}, fmt.Errorf("parse flow document: %w", err)
	}
	if def.Name == "" {
		return FlowDefinition{}, &ValidationError{Code: CodeInvalidDefinition, Message: "flow name is required"}
	}
	return def, nil
}

// EncodeFlowDocument is the inverse of ParseFlowDocument.
func EncodeFlowDocument(def FlowDefinition) ([]byte, error) {
	return json.Marshal(def)
}

// Version derives the content version identifying this exact definition.
// Two definitions with the same nodes, edges and configuration share a
// version regardless of declaration order.
func (d FlowDefinition) Version() string {
	c := d
	c.Nodes = append([]NodeSpec(nil), d.Nodes...)
	c.Edges = append([]EdgeSpec(nil), d.Edges...)
	sort.Slice(c.Nodes, func(i, j int) bool { return c.Nodes[i].ID < c.Nodes[j].ID })
	sort.Slice(c.Edges, func(i, j int) bool {
		if c.Edges[i].From != c.Edges[j].From {
			return c.Edges[i].From < c.Edges[j].From
		}
		return c.Edges[i].To < c.Edges[j].To
	})

	// Map keys are emitted in sorted order, so the encoding of the
	// canonicalized definition is stable.
	data, err := json.Marshal(c)
	if err != nil {
		// A definition that cannot be encoded cannot be registered
		// either; the zero version never matches a stored one.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
