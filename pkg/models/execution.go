package models

import "time"

// JourneyContactStatus is the state of a contact's membership in a journey.
type JourneyContactStatus string

const (
	JourneyContactActive    JourneyContactStatus = "ACTIVE"
	JourneyContactPaused    JourneyContactStatus = "PAUSED"
	JourneyContactCompleted JourneyContactStatus = "COMPLETED"
	JourneyContactRemoved   JourneyContactStatus = "REMOVED"
)

// JourneyContact is a contact's membership and cursor in a journey.
type JourneyContact struct {
	ID             string               `json:"id"`
	JourneyID      string               `json:"journey_id"`
	TenantID       string               `json:"tenant_id"`
	ContactID      string               `json:"contact_id"`
	Status         JourneyContactStatus `json:"status"`
	CurrentNodeID  string               `json:"current_node_id,omitempty"`
	Source         string               `json:"source,omitempty"`
	EnrollmentData map[string]any       `json:"enrollment_data,omitempty"`
	StatusReason   string               `json:"status_reason,omitempty"`
	// Enrollment counts how often the contact entered the journey. It starts at 1.
	Enrollment     int                  `json:"enrollment"`
	EnrolledAt     time.Time            `json:"enrolled_at"`
	PausedAt       *time.Time           `json:"paused_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	RemovedAt      *time.Time           `json:"removed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// IsActive reports whether the engine may advance this membership.
func (jc *JourneyContact) IsActive() bool {
	return jc.Status == JourneyContactActive
}

// ExecutionStatus is the state of one node execution attempt.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionExecuting ExecutionStatus = "EXECUTING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionSkipped   ExecutionStatus = "SKIPPED"
)

// IsOpen reports whether the status counts toward the one-open-execution rule.
func (s ExecutionStatus) IsOpen() bool {
	return s == ExecutionPending || s == ExecutionExecuting
}

// IsTerminal reports whether the execution can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionSkipped
}

// CallbackKind names the external callback an EXECUTING execution is suspended on.
type CallbackKind string

const (
	CallbackNone           CallbackKind = ""
	CallbackCallCompletion CallbackKind = "call_completion"
)

// Outcomes produced by node executors and the call-completion router.
const (
	OutcomeSent        = "sent"
	OutcomeOptedOut    = "opted_out"
	OutcomeBlocked     = "blocked"
	OutcomeFailed      = "failed"
	OutcomeAdded       = "added"
	OutcomeRemoved     = "removed"
	OutcomeSucceeded   = "succeeded"
	OutcomeWaited      = "waited"
	OutcomeEvaluated   = "evaluated"
	OutcomeUpdated     = "updated"
	OutcomeDispatched  = "dispatched"
	OutcomeSkipped     = "skipped"
	OutcomeAnswered    = "answered"
	OutcomeTransferred = "transferred"
	OutcomeBusy        = "busy"
	OutcomeNoAnswer    = "no_answer"
)

// IsFailureOutcome reports whether an outcome routes through the failure edge.
func IsFailureOutcome(outcome string) bool {
	switch outcome {
	case OutcomeFailed, OutcomeBlocked, OutcomeOptedOut:
		return true
	default:
		return false
	}
}

// ExecutionResult is the audit record of what an execution did.
type ExecutionResult struct {
	Outcome    string         `json:"outcome,omitempty"`
	Error      string         `json:"error,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	NextNodeID string         `json:"next_node_id,omitempty"`
	Branched   bool           `json:"branched,omitempty"`
	DelayUntil *time.Time     `json:"delay_until,omitempty"`
	EndJourney bool           `json:"end_journey,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// JourneyNodeExecution is one attempt to run one node for one journey contact.
type JourneyNodeExecution struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	JourneyID         string          `json:"journey_id"`
	JourneyContactID  string          `json:"journey_contact_id"`
	NodeID            string          `json:"node_id"`
	NodeType          NodeType        `json:"node_type"`
	Status            ExecutionStatus `json:"status"`
	AwaitingCallback  CallbackKind    `json:"awaiting_callback,omitempty"`
	CallCorrelationID string          `json:"call_correlation_id,omitempty"`
	CallPhone         string          `json:"call_phone,omitempty"`
	Enrollment        int             `json:"enrollment"`
	ScheduledAt       time.Time       `json:"scheduled_at"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Result            ExecutionResult `json:"result"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsAwaitingCall reports whether the execution is suspended on a call completion.
func (e *JourneyNodeExecution) IsAwaitingCall() bool {
	return e.Status == ExecutionExecuting && e.AwaitingCallback == CallbackCallCompletion
}
