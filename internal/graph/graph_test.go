package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/arbor/pkg/api"
)

func pipeline() api.FlowDefinition {
	return api.FlowDefinition{
		Name: "pipeline",
		Nodes: []api.NodeSpec{
			{ID: "in", Kind: api.KindTrigger},
			{ID: "fetch", Kind: api.KindTool},
			{ID: "transform", Kind: api.KindTransform},
			{ID: "out", Kind: api.KindDataSink},
		},
		Edges: []api.EdgeSpec{
			{From: "in", To: "fetch"},
			{From: "fetch", To: "transform"},
			{From: "transform", To: "out"},
		},
	}
}

func TestValidate_Pipeline(t *testing.T) {
	g, err := Validate(pipeline())
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"in"}, g.Entries())
	assert.Empty(t, g.Warnings)

	assert.Equal(t, 0, g.Rank("in"))
	assert.Equal(t, 1, g.Rank("fetch"))
	assert.Equal(t, 3, g.Rank("out"))

	succ := g.Successors("fetch")
	require.Len(t, succ, 1)
	assert.Equal(t, "transform", succ[0].To)

	pred := g.Predecessors("out")
	require.Len(t, pred, 1)
	assert.Equal(t, "transform", pred[0].From)
}

func TestValidate_DiamondHasSingleEntry(t *testing.T) {
	def := api.FlowDefinition{
		Name: "diamond",
		Nodes: []api.NodeSpec{
			{ID: "a", Kind: api.KindTrigger},
			{ID: "b", Kind: api.KindTool},
			{ID: "c", Kind: api.KindTool},
			{ID: "d", Kind: api.KindDataSink},
		},
		Edges: []api.EdgeSpec{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
	}
	g, err := Validate(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.Entries())
	assert.Equal(t, 2, g.Rank("d"))
}

func TestValidate_EmptyName(t *testing.T) {
	_, err := Validate(api.FlowDefinition{Nodes: []api.NodeSpec{{ID: "a", Kind: api.KindTool}}})
	requireValidationCode(t, err, api.CodeInvalidDefinition)
}

func TestValidate_NoNodes(t *testing.T) {
	_, err := Validate(api.FlowDefinition{Name: "empty"})
	requireValidationCode(t, err, api.CodeInvalidDefinition)
}

func TestValidate_DuplicateNode(t *testing.T) {
	def := api.FlowDefinition{
		Name: "dup",
		Nodes: []api.NodeSpec{
			{ID: "a", Kind: api.KindTool},
			{ID: "a", Kind: api.KindTool},
		},
	}
	_, err := Validate(def)
	requireValidationCode(t, err, api.CodeDuplicateNode)
}

func TestValidate_UnknownEdgeNode(t *testing.T) {
	def := api.FlowDefinition{
		Name:  "bad-edge",
		Nodes: []api.NodeSpec{{ID: "a", Kind: api.KindTool}},
		Edges: []api.EdgeSpec{{From: "a", To: "ghost"}},
	}
	_, err := Validate(def)
	requireValidationCode(t, err, api.CodeUnknownEdgeNode)
}

func TestValidate_CycleNamesANodeOnTheCycle(t *testing.T) {
	def := api.FlowDefinition{
		Name: "cyclic",
		Nodes: []api.NodeSpec{
			{ID: "entry", Kind: api.KindTrigger},
			{ID: "a", Kind: api.KindTool},
			{ID: "b", Kind: api.KindTool},
			{ID: "c", Kind: api.KindTool},
		},
		Edges: []api.EdgeSpec{
			{From: "entry", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "c", To: "a"},
		},
	}
	_, err := Validate(def)
	var ve *api.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, api.CodeCycleDetected, ve.Code)
	assert.Contains(t, []string{"a", "b", "c"}, ve.NodeID)
}

func TestValidate_NoEntryNode(t *testing.T) {
	def := api.FlowDefinition{
		Name: "ring",
		Nodes: []api.NodeSpec{
			{ID: "a", Kind: api.KindTool},
			{ID: "b", Kind: api.KindTool},
		},
		Edges: []api.EdgeSpec{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	_, err := Validate(def)
	requireValidationCode(t, err, api.CodeNoEntryNode)
}

func TestValidate_BranchGuards(t *testing.T) {
	base := func() api.FlowDefinition {
		return api.FlowDefinition{
			Name: "routed",
			Nodes: []api.NodeSpec{
				{ID: "in", Kind: api.KindTrigger},
				{ID: "route", Kind: api.KindBranch},
				{ID: "left", Kind: api.KindTool},
				{ID: "right", Kind: api.KindTool},
			},
			Edges: []api.EdgeSpec{
				{From: "in", To: "route"},
				{From: "route", To: "left", Guard: `{{in.kind}} == "l"`},
				{From: "route", To: "right", Guard: `{{in.kind}} == "r"`},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		_, err := Validate(base())
		require.NoError(t, err)
	})

	t.Run("missing guard", func(t *testing.T) {
		def := base()
		def.Edges[2].Guard = ""
		_, err := Validate(def)
		requireValidationCode(t, err, api.CodeAmbiguousRouting)
	})

	t.Run("duplicate guard", func(t *testing.T) {
		def := base()
		def.Edges[2].Guard = def.Edges[1].Guard
		_, err := Validate(def)
		requireValidationCode(t, err, api.CodeAmbiguousRouting)
	})

	t.Run("guard on non-branch edge", func(t *testing.T) {
		def := base()
		def.Edges[0].Guard = "true"
		_, err := Validate(def)
		requireValidationCode(t, err, api.CodeInvalidDefinition)
	})
}

func TestValidate_UnreachableIsWarningOnly(t *testing.T) {
	// Two disconnected components both have entries, so everything is
	// reachable; warnings stay empty for any valid DAG.
	def := pipeline()
	def.Nodes = append(def.Nodes, api.NodeSpec{ID: "island", Kind: api.KindTool})
	g, err := Validate(def)
	require.NoError(t, err)
	assert.Empty(t, g.Warnings)
	assert.Equal(t, []string{"in", "island"}, g.Entries())
}

func requireValidationCode(t *testing.T, err error, code string) {
	t.Helper()
	var ve *api.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, code, ve.Code)
}
