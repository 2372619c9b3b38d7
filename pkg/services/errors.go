// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidConfig   = errors.New("invalid node config")
	ErrInvalidEdge     = errors.New("invalid node connection")
	ErrInvalidGraph    = errors.New("journey graph is not launchable")
	ErrEmptyTenantID   = errors.New("tenant ID cannot be empty")
	ErrUnknownNodeType = errors.New("unknown node type")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyArchived = errors.New("cannot modify archived journey")
	ErrInvalidTransition    = errors.New("journey status does not allow this operation")
	ErrNodeReferenced       = errors.New("node is referenced by other nodes")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidEdge) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrEmptyTenantID) ||
		errors.Is(err, ErrUnknownNodeType)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyArchived) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNodeReferenced)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
