// Package submission models work items, their mutable status records and
// the patches used to change them.
package submission

import (
	"time"
)

// State is the processing state of a work item.
type State string

// State constants
const (
	StateReceived             State = "RECEIVED"
	StateValidated            State = "VALIDATED"
	StateOpen                 State = "OPEN"
	StateEvaluationInProgress State = "EVALUATION_IN_PROGRESS"
	StateAccepted             State = "ACCEPTED"
	StateInvalid              State = "INVALID"
	StateRejected             State = "REJECTED"
	StateClosed               State = "CLOSED"
	StateScored               State = "SCORED"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateReceived, StateValidated, StateOpen, StateEvaluationInProgress,
		StateAccepted, StateInvalid, StateRejected, StateClosed, StateScored:
		return true
	}
	return false
}

// Submission is an immutable work item.
type Submission struct {
	ID        string    `json:"id"`
	QueueID   string    `json:"evaluationId"`
	UserID    string    `json:"userId"`
	TeamID    string    `json:"teamId,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedOn time.Time `json:"createdOn"`
}

// SubmitterID is the team when the item was submitted on behalf of one,
// otherwise the user.
func (s Submission) SubmitterID() string {
	if s.TeamID != "" {
		return s.TeamID
	}
	return s.UserID
}

// IsTeam reports whether the submitter is a team.
func (s Submission) IsTeam() bool {
	return s.TeamID != ""
}

// Status is the mutable projection of a Submission. Etag is the version
// token used for optimistic concurrency.
type Status struct {
	ID              string      `json:"id"`
	Etag            string      `json:"etag"`
	State           State       `json:"status"`
	Annotations     Annotations `json:"annotations,omitempty"`
	CancelRequested *bool       `json:"cancelRequested,omitempty"`
	CanCancel       *bool       `json:"canCancel,omitempty"`
	ModifiedOn      time.Time   `json:"modifiedOn"`
}

// Clone returns a deep copy of s.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	c.Annotations = s.Annotations.Clone()
	if s.CancelRequested != nil {
		v := *s.CancelRequested
		c.CancelRequested = &v
	}
	if s.CanCancel != nil {
		v := *s.CanCancel
		c.CanCancel = &v
	}
	return &c
}

// IsCancelRequested treats an absent flag as false.
func (s *Status) IsCancelRequested() bool {
	return s.CancelRequested != nil && *s.CancelRequested
}

// JobName returns the workflow job annotation.
func (s *Status) JobName() (string, bool) {
	return s.Annotations.String(KeyWorkflowJobID)
}

// HasTimeRemaining reports whether the TIME_REMAINING annotation is absent or
// positive.
func (s *Status) HasTimeRemaining() bool {
	v, ok := s.Annotations.Long(KeyTimeRemaining)
	return !ok || v > 0
}

// Bundle pairs a submission with its status.
type Bundle struct {
	Submission Submission `json:"submission"`
	Status     *Status    `json:"submissionStatus"`
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
