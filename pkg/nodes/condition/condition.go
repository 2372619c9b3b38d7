// Package condition implements the CONDITION node.
package condition

import (
	"context"

	"github.com/dukex/journey/pkg/evaluator"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

// Executor evaluates a CONDITION node's branches against the contact.
type Executor struct{}

func New() *Executor {
	return &Executor{}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (e *Executor) Name() string {
	return "Condition"
}

func (e *Executor) Description() string {
	return "Routes the contact down the first branch whose condition matches, or the default branch"
}

// Schema covers the node config only. Branches are validated as part of the graph.
func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
	}
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	selection, err := evaluator.EvaluateCondition(ctx, in.Node, in.Contact, in.Conversation)
	if err != nil {
		return protocol.Result{}, protocol.NewConfigError(in.Node.ID, "condition evaluation failed", err)
	}

	return protocol.Result{
		Outcome:    models.OutcomeEvaluated,
		NextNodeID: selection.NextNodeID,
		Branched:   true,
		Data: map[string]any{
			"branch_id": selection.BranchID,
			"default":   selection.Default,
		},
	}, nil
}
