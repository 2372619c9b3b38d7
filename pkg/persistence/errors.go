package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence errors every implementation returns.
var (
	// ErrJourneyNotFound indicates a journey was not found by the given identifier.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrNodeNotFound indicates a node was not found in its journey.
	ErrNodeNotFound = errors.New("node not found")

	// ErrJourneyContactNotFound indicates the contact is not enrolled in the journey.
	ErrJourneyContactNotFound = errors.New("journey contact not found")

	// ErrExecutionNotFound indicates a node execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	ErrContactNotFound  = errors.New("contact not found")
	ErrTenantNotFound   = errors.New("tenant settings not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrWebhookNotFound  = errors.New("webhook not found")
	ErrCallLogNotFound  = errors.New("call log not found")
)

// JourneyError wraps journey-related errors with the operation and journey.
type JourneyError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	JourneyID string
	Err       error
}

func (e *JourneyError) Error() string {
	return fmt.Sprintf("%s operation failed for journey %s: %v", e.Op, e.JourneyID, e.Err)
}

func (e *JourneyError) Unwrap() error {
	return e.Err
}

func (e *JourneyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewJourneyError creates a new journey error with context.
func NewJourneyError(op, journeyID string, err error) *JourneyError {
	return &JourneyError{Op: op, JourneyID: journeyID, Err: err}
}

// NodeError wraps node-related errors with additional context.
type NodeError struct {
	Op        string
	JourneyID string
	NodeID    string
	Err       error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in journey %s: %v", e.Op, e.NodeID, e.JourneyID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewNodeError creates a new node error with context.
func NewNodeError(op, journeyID, nodeID string, err error) *NodeError {
	return &NodeError{Op: op, JourneyID: journeyID, NodeID: nodeID, Err: err}
}

// IsJourneyNotFound checks if an error indicates a journey was not found.
func IsJourneyNotFound(err error) bool {
	return errors.Is(err, ErrJourneyNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrJourneyNotFound, ErrNodeNotFound, ErrJourneyContactNotFound, ErrExecutionNotFound,
		ErrContactNotFound, ErrTenantNotFound, ErrCampaignNotFound, ErrWebhookNotFound, ErrCallLogNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
