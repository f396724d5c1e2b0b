package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID:        "wf-1",
		EntryNode: "start",
		Nodes: []Node{
			{ID: "start", Type: NodeTypeStatic},
			{ID: "end", Type: NodeTypeStatic},
		},
		Edges: []Edge{{From: "start", To: "end"}},
	}
}

func TestWorkflow_Validate_Accepts(t *testing.T) {
	require.NoError(t, linearWorkflow().Validate())
}

func TestWorkflow_Validate_RejectsMissingEntry(t *testing.T) {
	wf := linearWorkflow()
	wf.EntryNode = ""
	assert.True(t, IsInvalidInput(wf.Validate()))

	wf = linearWorkflow()
	wf.EntryNode = "ghost"
	assert.True(t, IsInvalidInput(wf.Validate()))
}

func TestWorkflow_Validate_RejectsDanglingEdge(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, Edge{From: "end", To: "nowhere"})
	assert.True(t, IsInvalidInput(wf.Validate()))
}

func TestWorkflow_Validate_RejectsDuplicateNodeID(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, Node{ID: "start", Type: NodeTypeTool})
	assert.True(t, IsInvalidInput(wf.Validate()))
}

func TestWorkflow_Validate_AcceptsCycles(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, Edge{From: "end", To: "start"})
	require.NoError(t, wf.Validate())
}

func TestWorkflow_OutgoingEdges_PreservesDeclarationOrder(t *testing.T) {
	wf := &Workflow{
		ID:        "wf-2",
		EntryNode: "a",
		Nodes: []Node{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
		Edges: []Edge{
			{From: "a", To: "b", Condition: "needs review"},
			{From: "a", To: "c"},
		},
	}
	require.NoError(t, wf.Validate())

	edges := wf.OutgoingEdges("a")
	require.Len(t, edges, 2)
	assert.Equal(t, "b", edges[0].To)
	assert.Equal(t, "c", edges[1].To)
	assert.Empty(t, wf.OutgoingEdges("c"))
}

func TestPolicyContext_AsMap_ProjectsNestedInput(t *testing.T) {
	pctx := &PolicyContext{
		TenantID: "acme",
		Action:   "tool_call",
		ToolID:   "deploy",
		Mode:     RunModeAuto,
		Input:    map[string]interface{}{"env": "prod"},
	}

	m := pctx.AsMap()
	assert.Equal(t, "acme", m["tenant_id"])
	assert.Equal(t, "tool_call", m["action"])
	assert.Equal(t, "auto", m["mode"])

	input, ok := m["input"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "prod", input["env"])
}
