package graph_test

import (
	"testing"
	"time"

	"github.com/dukex/journey/pkg/graph"
	"github.com/dukex/journey/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func node(id string, nodeType models.NodeType, createdOffset time.Duration, conns models.Connections) *models.JourneyNode {
	return &models.JourneyNode{
		ID:          id,
		Type:        nodeType,
		Connections: conns,
		CreatedAt:   base.Add(createdOffset),
	}
}

func TestResolveEntryNode(t *testing.T) {
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	t.Run("node without incoming edges", func(t *testing.T) {
		nodes := []*models.JourneyNode{
			node(b, models.NodeTypeTimeDelay, time.Second, models.Connections{NextNodeID: c}),
			node(c, models.NodeTypeMakeCall, 2*time.Second, models.Connections{}),
			node(a, models.NodeTypeSendSMS, 3*time.Second, models.Connections{NextNodeID: b}),
		}

		entry, err := graph.ResolveEntryNode(nodes)
		require.NoError(t, err)
		assert.Equal(t, a, entry.ID)
	})

	t.Run("earliest untargeted node wins", func(t *testing.T) {
		nodes := []*models.JourneyNode{
			node(b, models.NodeTypeSendSMS, 2*time.Second, models.Connections{}),
			node(a, models.NodeTypeSendSMS, time.Second, models.Connections{}),
		}

		entry, err := graph.ResolveEntryNode(nodes)
		require.NoError(t, err)
		assert.Equal(t, a, entry.ID)
	})

	t.Run("fully cyclic graph falls back to first created", func(t *testing.T) {
		nodes := []*models.JourneyNode{
			node(b, models.NodeTypeSendSMS, 2*time.Second, models.Connections{NextNodeID: a}),
			node(a, models.NodeTypeSendSMS, time.Second, models.Connections{NextNodeID: b}),
		}

		entry, err := graph.ResolveEntryNode(nodes)
		require.NoError(t, err)
		assert.Equal(t, a, entry.ID)
	})

	t.Run("branch and path targets count as incoming edges", func(t *testing.T) {
		nodes := []*models.JourneyNode{
			node(b, models.NodeTypeSendSMS, 0, models.Connections{}),
			node(c, models.NodeTypeSendSMS, 0, models.Connections{}),
			node(a, models.NodeTypeCondition, time.Second, models.Connections{
				Branches:      []models.Branch{{NextNodeID: b}},
				DefaultBranch: &models.DefaultBranch{NextNodeID: c},
			}),
		}

		entry, err := graph.ResolveEntryNode(nodes)
		require.NoError(t, err)
		assert.Equal(t, a, entry.ID)
	})

	t.Run("empty graph", func(t *testing.T) {
		_, err := graph.ResolveEntryNode(nil)
		assert.ErrorIs(t, err, graph.ErrNoEntryNode)
	})
}

func TestResolveNextNode(t *testing.T) {
	next, failed, answered := uuid.NewString(), uuid.NewString(), uuid.NewString()

	callNode := node(uuid.NewString(), models.NodeTypeMakeCall, 0, models.Connections{
		NextNodeID: next,
		Outputs: map[string]string{
			models.OutcomeFailed:   failed,
			models.OutcomeAnswered: answered,
		},
	})

	tests := []struct {
		name     string
		node     *models.JourneyNode
		result   models.ExecutionResult
		expected string
	}{
		{"outcome output edge", callNode, models.ExecutionResult{Outcome: models.OutcomeAnswered}, answered},
		{"transferred falls back to answered", callNode, models.ExecutionResult{Outcome: models.OutcomeTransferred}, answered},
		{"unmapped outcome uses next node", callNode, models.ExecutionResult{Outcome: models.OutcomeBusy}, next},
		{"failure outcome uses failed edge", callNode, models.ExecutionResult{Outcome: models.OutcomeBlocked}, failed},
		{
			"failure without failed edge completes",
			node(uuid.NewString(), models.NodeTypeSendSMS, 0, models.Connections{NextNodeID: next}),
			models.ExecutionResult{Outcome: models.OutcomeFailed},
			"",
		},
		{
			"branching node uses evaluated target",
			node(uuid.NewString(), models.NodeTypeCondition, 0, models.Connections{NextNodeID: failed}),
			models.ExecutionResult{Outcome: models.OutcomeEvaluated, NextNodeID: next, Branched: true},
			next,
		},
		{"end journey completes", callNode, models.ExecutionResult{Outcome: models.OutcomeUpdated, EndJourney: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := graph.ResolveNextNode(tt.node, tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveNextNode_MalformedID(t *testing.T) {
	n := node(uuid.NewString(), models.NodeTypeSendSMS, 0, models.Connections{NextNodeID: "node-1700000000000"})

	_, err := graph.ResolveNextNode(n, models.ExecutionResult{Outcome: models.OutcomeSent})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrMalformedNodeID)
	assert.True(t, graph.IsRoutingError(err))
}

func TestGraph_NextDanglingEdge(t *testing.T) {
	n := node(uuid.NewString(), models.NodeTypeSendSMS, 0, models.Connections{NextNodeID: uuid.NewString()})
	g := graph.New([]*models.JourneyNode{n})

	_, err := g.Next(n, models.ExecutionResult{Outcome: models.OutcomeSent})
	assert.ErrorIs(t, err, graph.ErrDanglingEdge)
}

func TestGraph_Validate(t *testing.T) {
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	t.Run("valid linear graph", func(t *testing.T) {
		g := graph.New([]*models.JourneyNode{
			node(a, models.NodeTypeSendSMS, 0, models.Connections{NextNodeID: b}),
			node(b, models.NodeTypeTimeDelay, time.Second, models.Connections{NextNodeID: c}),
			node(c, models.NodeTypeMakeCall, 2*time.Second, models.Connections{}),
		})
		assert.NoError(t, g.Validate())
	})

	t.Run("multiple entries", func(t *testing.T) {
		g := graph.New([]*models.JourneyNode{
			node(a, models.NodeTypeSendSMS, 0, models.Connections{}),
			node(b, models.NodeTypeSendSMS, time.Second, models.Connections{}),
		})
		assert.ErrorIs(t, g.Validate(), graph.ErrMultipleEntryNodes)
	})

	t.Run("placeholder id", func(t *testing.T) {
		g := graph.New([]*models.JourneyNode{
			node(a, models.NodeTypeSendSMS, 0, models.Connections{NextNodeID: "temp-2"}),
		})
		assert.ErrorIs(t, g.Validate(), graph.ErrMalformedNodeID)
	})

	t.Run("weighted path without weight", func(t *testing.T) {
		g := graph.New([]*models.JourneyNode{
			node(a, models.NodeTypeWeightedPath, 0, models.Connections{
				Paths: []models.WeightedPath{{Percentage: 0, NextNodeID: b}},
			}),
			node(b, models.NodeTypeSendSMS, time.Second, models.Connections{}),
		})
		assert.ErrorIs(t, g.Validate(), graph.ErrInvalidPaths)
	})
}
