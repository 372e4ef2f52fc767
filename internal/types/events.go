package types

import "time"

type EventKind string

const (
	EventQueued              EventKind = "queued"
	EventStarted             EventKind = "started"
	EventConflictCheckFailed EventKind = "conflict_check_failed"
	EventDecisionExpired     EventKind = "decision_expired"
	EventSucceeded           EventKind = "succeeded"
	EventFailed              EventKind = "failed"
	EventSkipped             EventKind = "skipped"
)

// Terminal reports whether the event finalizes its job.
func (k EventKind) Terminal() bool {
	return k == EventSucceeded || k == EventFailed || k == EventSkipped
}

// Event is a progress report addressed to the job's submitter.
type Event struct {
	Kind     EventKind         `json:"kind"`
	Job      Job               `json:"job"`
	Position int               `json:"position,omitempty"` // jobs ahead when queued
	Target   *Location         `json:"target,omitempty"`
	Record   *EvaluationRecord `json:"record,omitempty"`
	Error    string            `json:"error,omitempty"`
	At       time.Time         `json:"at"`
}

// Prompt asks the owner whether an existing record should be overwritten.
type Prompt struct {
	Job      Job       `json:"job"`
	Existing Location  `json:"existing"`
	AskedAt  time.Time `json:"asked_at"`
}
