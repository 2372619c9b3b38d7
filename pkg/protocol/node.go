// Package protocol defines the contracts between the engine, its node executors
// and external collaborators.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
)

// ErrConfiguration marks errors that halt a contact's journey until an operator intervenes.
var ErrConfiguration = errors.New("node configuration error")

// ConfigError is the only error a NodeExecutor returns. Everything recoverable
// is reported through Result.
type ConfigError struct {
	NodeID  string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Message, e.Err)
	}

	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration || errors.Is(e.Err, target)
}

// NewConfigError creates a configuration error for a node.
func NewConfigError(nodeID, message string, err error) *ConfigError {
	return &ConfigError{NodeID: nodeID, Message: message, Err: err}
}

// IsConfigError reports whether err is a fatal configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Suspension tells the engine to leave the execution EXECUTING until a call completes.
type Suspension struct {
	CorrelationID string
	Phone         string
}

// Result is what a node execution produced.
type Result struct {
	Outcome    string
	Error      string
	Reason     string
	NextNodeID string // branching nodes only
	Branched   bool
	DelayUntil *time.Time
	EndJourney bool
	Suspend    *Suspension
	Data       map[string]any
}

// Failed reports whether the outcome routes through the failure edge.
func (r Result) Failed() bool {
	return models.IsFailureOutcome(r.Outcome)
}

// ExecutionResult converts r into its persisted form.
func (r Result) ExecutionResult() models.ExecutionResult {
	return models.ExecutionResult{
		Outcome:    r.Outcome,
		Error:      r.Error,
		Reason:     r.Reason,
		NextNodeID: r.NextNodeID,
		Branched:   r.Branched,
		DelayUntil: r.DelayUntil,
		EndJourney: r.EndJourney,
		Data:       r.Data,
	}
}

// Failure builds a recoverable failed result.
func Failure(reason string, err error) Result {
	result := Result{Outcome: models.OutcomeFailed, Reason: reason}
	if err != nil {
		result.Error = err.Error()
	}

	return result
}

// ExecutionInput carries everything a node needs to run once.
type ExecutionInput struct {
	Now            time.Time
	Journey        *models.Journey
	Node           *models.JourneyNode
	JourneyContact *models.JourneyContact
	Contact        *models.Contact
	Settings       *models.TenantSettings
	Execution      *models.JourneyNodeExecution
	Conversation   ConversationContext
}

// TenantID returns the tenant the execution belongs to.
func (in *ExecutionInput) TenantID() string {
	if in.JourneyContact != nil && in.JourneyContact.TenantID != "" {
		return in.JourneyContact.TenantID
	}

	return in.Journey.TenantID
}

// NodeExecutor performs one node kind's action.
type NodeExecutor interface {
	// Type returns the node type this executor handles
	Type() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any

	// Execute runs the node. A non-nil error is always a *ConfigError.
	Execute(ctx context.Context, in *ExecutionInput) (Result, error)
}

// ConfigAs asserts the node's config to the expected concrete type.
func ConfigAs[T models.NodeConfig](node *models.JourneyNode) (T, error) {
	config, ok := node.Config.(T)
	if !ok {
		var zero T

		return zero, NewConfigError(node.ID, fmt.Sprintf("unexpected config %T for %s node", node.Config, node.Type), nil)
	}

	return config, nil
}
