// Package weightedpath implements the WEIGHTED_PATH node.
package weightedpath

import (
	"context"

	"github.com/dukex/journey/pkg/evaluator"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

// Executor splits contacts across paths by a stable hash of the contact id.
type Executor struct{}

func New() *Executor {
	return &Executor{}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeWeightedPath
}

func (e *Executor) Name() string {
	return "Weighted Path"
}

func (e *Executor) Description() string {
	return "Splits contacts across paths by percentage; a contact always takes the same path"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
	}
}

func (e *Executor) Execute(_ context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	contactID := in.JourneyContact.ContactID

	selection, err := evaluator.EvaluateWeightedPath(in.Node, contactID)
	if err != nil {
		return protocol.Result{}, protocol.NewConfigError(in.Node.ID, "weighted path has no usable paths", err)
	}

	return protocol.Result{
		Outcome:    models.OutcomeEvaluated,
		NextNodeID: selection.NextNodeID,
		Branched:   true,
		Data: map[string]any{
			"path_id":      selection.BranchID,
			"hash_percent": evaluator.HashPercent(contactID),
		},
	}, nil
}
