package domain

type Workflow struct {
	ID        string                 `json:"id"`
	Version   int                    `json:"version"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	EntryNode string                 `json:"entry_node"`
	Nodes     []Node                 `json:"nodes"`
	Edges     []Edge                 `json:"edges"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type NodeType string

const (
	NodeTypeStatic    NodeType = "static"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeRouter    NodeType = "router"
	NodeTypeHumanGate NodeType = "human_gate"
)

type Node struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Route is one declared routing choice on a router node, parsed from the
// node's config. TargetNode must reference a declared node id.
type Route struct {
	ID         string `json:"id"`
	Condition  string `json:"condition,omitempty"`
	TargetNode string `json:"target_node"`
}

func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns the edges leaving a node in declaration order.
// Cycles are ordinary data here; traversal is bounded by the step counter.
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks referential integrity: the entry node and every edge
// endpoint must reference a declared node id.
func (w *Workflow) Validate() error {
	if w.EntryNode == "" {
		return NewValidationError("entry_node", "entry node is required")
	}
	ids := make(map[string]struct{}, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return NewValidationError("nodes", "node id cannot be empty")
		}
		if _, dup := ids[n.ID]; dup {
			return NewValidationError("nodes", "duplicate node id: "+n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	if _, ok := ids[w.EntryNode]; !ok {
		return NewValidationError("entry_node", "entry node not declared: "+w.EntryNode)
	}
	for _, e := range w.Edges {
		if _, ok := ids[e.From]; !ok {
			return NewValidationError("edges", "edge source not declared: "+e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return NewValidationError("edges", "edge target not declared: "+e.To)
		}
	}
	return nil
}
