package workflow

import (
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/meshflow/meshflow/engine/core"
)

// -----------------------------------------------------------------------------
// Document model
// -----------------------------------------------------------------------------

// DefaultPort is the implicit port name used when a node or edge does not
// declare one.
const DefaultPort = "main"

// TriggerNodeType is the node type that marks a workflow's entry point.
const TriggerNodeType = "trigger"

// Position is the canvas placement of a node. The engine carries it for
// round-tripping documents; it has no execution semantics.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Ports declares a node's named input and output ports. Nodes without a
// declaration expose a single "main" port on each side.
type Ports struct {
	In  []string `json:"in,omitempty"  yaml:"in,omitempty"`
	Out []string `json:"out,omitempty" yaml:"out,omitempty"`
}

// Node is one step in a workflow graph.
type Node struct {
	ID       string     `json:"id"                 yaml:"id"`
	Type     string     `json:"type"               yaml:"type"`
	Name     string     `json:"name,omitempty"     yaml:"name,omitempty"`
	Position Position   `json:"position,omitempty" yaml:"position,omitempty"`
	Config   core.Input `json:"config,omitempty"   yaml:"config,omitempty"`
	Ports    *Ports     `json:"ports,omitempty"    yaml:"ports,omitempty"`
}

// OutPorts returns the node's declared output ports, defaulting to "main".
func (n *Node) OutPorts() []string {
	if n.Ports != nil && len(n.Ports.Out) > 0 {
		return n.Ports.Out
	}
	return []string{DefaultPort}
}

// InPorts returns the node's declared input ports, defaulting to "main".
func (n *Node) InPorts() []string {
	if n.Ports != nil && len(n.Ports.In) > 0 {
		return n.Ports.In
	}
	return []string{DefaultPort}
}

// HasOutPort reports whether the node exposes the named output port.
func (n *Node) HasOutPort(port string) bool {
	for _, p := range n.OutPorts() {
		if p == port {
			return true
		}
	}
	return false
}

// HasInPort reports whether the node exposes the named input port.
func (n *Node) HasInPort(port string) bool {
	for _, p := range n.InPorts() {
		if p == port {
			return true
		}
	}
	return false
}

// Edge wires one node's output port to another node's input port.
type Edge struct {
	From     string `json:"from"               yaml:"from"`
	FromPort string `json:"fromPort,omitempty" yaml:"fromPort,omitempty"`
	To       string `json:"to"                 yaml:"to"`
	ToPort   string `json:"toPort,omitempty"   yaml:"toPort,omitempty"`
}

// Normalized returns the edge with empty port names replaced by "main".
func (e Edge) Normalized() Edge {
	if e.FromPort == "" {
		e.FromPort = DefaultPort
	}
	if e.ToPort == "" {
		e.ToPort = DefaultPort
	}
	return e
}

// TriggerType enumerates how a workflow run can be started.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
	TriggerWebhook  TriggerType = "webhook"
)

// Trigger describes one way the workflow is started. Schedule triggers carry
// a cron expression; event triggers an event name; webhook triggers an
// optional path and expression filter.
type Trigger struct {
	ID     string      `json:"id,omitempty"     yaml:"id,omitempty"`
	Type   TriggerType `json:"type"             yaml:"type"`
	Config core.Input  `json:"config,omitempty" yaml:"config,omitempty"`
}

// Config is a complete workflow document.
type Config struct {
	ID          string      `json:"id"                    yaml:"id"`
	Name        string      `json:"name,omitempty"        yaml:"name,omitempty"`
	Version     string      `json:"version,omitempty"     yaml:"version,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Triggers    []Trigger   `json:"triggers,omitempty"    yaml:"triggers,omitempty"`
	Nodes       []Node      `json:"nodes"                 yaml:"nodes"`
	Edges       []Edge      `json:"edges,omitempty"       yaml:"edges,omitempty"`
	Env         core.EnvMap `json:"env,omitempty"         yaml:"env,omitempty"`
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// Load reads a workflow document from a YAML or JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes decodes a workflow document. YAML is a superset of JSON, so both
// encodings decode through the same path. The document is normalized before
// it is returned.
func LoadBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Normalization
// -----------------------------------------------------------------------------

// Normalize fills derived fields: a document ID slugged from the name, node
// IDs slugged from names or positions, and canonical edge port names.
func (w *Config) Normalize() error {
	if w.ID == "" && w.Name != "" {
		w.ID = slug.Make(w.Name)
	}
	seen := make(map[string]bool, len(w.Nodes))
	for i := range w.Nodes {
		node := &w.Nodes[i]
		if node.ID == "" {
			node.ID = nodeSlug(node, i, seen)
		}
		seen[node.ID] = true
	}
	for i := range w.Edges {
		w.Edges[i] = w.Edges[i].Normalized()
	}
	for i := range w.Triggers {
		if w.Triggers[i].ID == "" {
			w.Triggers[i].ID = fmt.Sprintf("trigger-%d", i)
		}
	}
	return nil
}

func nodeSlug(node *Node, index int, seen map[string]bool) string {
	base := slug.Make(node.Name)
	if base == "" {
		base = slug.Make(node.Type)
	}
	if base == "" {
		base = fmt.Sprintf("node-%d", index)
	}
	candidate := base
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return candidate
}

// -----------------------------------------------------------------------------
// Lookups
// -----------------------------------------------------------------------------

// FindNode returns the node with the given ID, or nil.
func (w *Config) FindNode(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// EntryNode resolves the node the walk starts from: the first node of type
// "trigger", falling back to the first node in document order.
func (w *Config) EntryNode() (*Node, error) {
	if len(w.Nodes) == 0 {
		return nil, fmt.Errorf("workflow %q has no nodes", w.ID)
	}
	for i := range w.Nodes {
		if strings.EqualFold(w.Nodes[i].Type, TriggerNodeType) {
			return &w.Nodes[i], nil
		}
	}
	return &w.Nodes[0], nil
}
