package workflow

import (
	"fmt"
	"sort"
)

// -----------------------------------------------------------------------------
// Adjacency
// -----------------------------------------------------------------------------

// Adjacency is the resolved edge structure for one workflow document.
// Successor resolution is port-aware: control-flow nodes emit a selected
// output port and only edges leaving that port are followed.
//
// Documents that declare no edges get a synthesized linear chain in node
// order, preserving compatibility with positionally authored documents.
type Adjacency struct {
	out         map[string]map[string][]Edge
	in          map[string][]Edge
	synthesized bool
}

// BuildAdjacency resolves a document's edges into an adjacency structure.
// Edge endpoints must name existing nodes.
func BuildAdjacency(cfg *Config) (*Adjacency, error) {
	adj := &Adjacency{
		out: make(map[string]map[string][]Edge),
		in:  make(map[string][]Edge),
	}
	edges := cfg.Edges
	if len(edges) == 0 {
		edges = synthesizeChain(cfg)
		adj.synthesized = true
	}
	for _, edge := range edges {
		edge = edge.Normalized()
		if cfg.FindNode(edge.From) == nil {
			return nil, fmt.Errorf("edge references unknown source node %q", edge.From)
		}
		if cfg.FindNode(edge.To) == nil {
			return nil, fmt.Errorf("edge references unknown target node %q", edge.To)
		}
		ports, ok := adj.out[edge.From]
		if !ok {
			ports = make(map[string][]Edge)
			adj.out[edge.From] = ports
		}
		ports[edge.FromPort] = append(ports[edge.FromPort], edge)
		adj.in[edge.To] = append(adj.in[edge.To], edge)
	}
	return adj, nil
}

// synthesizeChain produces main→main edges in node-array order.
func synthesizeChain(cfg *Config) []Edge {
	if len(cfg.Nodes) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(cfg.Nodes)-1)
	for i := 0; i < len(cfg.Nodes)-1; i++ {
		edges = append(edges, Edge{
			From:     cfg.Nodes[i].ID,
			FromPort: DefaultPort,
			To:       cfg.Nodes[i+1].ID,
			ToPort:   DefaultPort,
		})
	}
	return edges
}

// Synthesized reports whether the adjacency was derived from node order
// rather than declared edges.
func (a *Adjacency) Synthesized() bool {
	return a.synthesized
}

// Successors returns the edges leaving the given node's output port. An
// empty port selects "main".
func (a *Adjacency) Successors(nodeID, port string) []Edge {
	if port == "" {
		port = DefaultPort
	}
	return a.out[nodeID][port]
}

// AllSuccessors returns every edge leaving the node in stable port order.
func (a *Adjacency) AllSuccessors(nodeID string) []Edge {
	ports := make([]string, 0, len(a.out[nodeID]))
	for port := range a.out[nodeID] {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	var edges []Edge
	for _, port := range ports {
		edges = append(edges, a.out[nodeID][port]...)
	}
	return edges
}

// InEdges returns the edges arriving at the given node.
func (a *Adjacency) InEdges(nodeID string) []Edge {
	return a.in[nodeID]
}
