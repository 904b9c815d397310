package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a contract review job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "QUEUED"
	JobStatusProcessing  JobStatus = "PROCESSING"
	JobStatusNeedsReview JobStatus = "NEEDS_REVIEW"
	JobStatusFailed      JobStatus = "FAILED"
	// JobStatusCompleted is set by a human reviewer outside the pipeline.
	JobStatusCompleted JobStatus = "COMPLETED"
)

// ActionJobCreated is the audit action written when a job is created.
const ActionJobCreated = "JOB_CREATED"

// ActorSystem is the actor recorded for pipeline-driven audit entries.
const ActorSystem = "system"

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusNeedsReview, JobStatusFailed},
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusNeedsReview, JobStatusFailed, JobStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the pipeline may move a job from s to next.
// Self-transitions and anything out of a terminal state are not allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionSources lists every status from which next is reachable.
func TransitionSources(next JobStatus) []JobStatus {
	var from []JobStatus
	for src, targets := range jobTransitions {
		for _, t := range targets {
			if t == next {
				from = append(from, src)
			}
		}
	}
	return from
}

// StatusChangedAction returns the audit action recorded for a transition to s.
func StatusChangedAction(s JobStatus) string {
	return "STATUS_CHANGED_TO_" + string(s)
}

// AuditEntry is one immutable record in a job's audit trail.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewAuditEntry returns a system-authored entry stamped with the current UTC time.
func NewAuditEntry(action string, details map[string]any) AuditEntry {
	return AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     ActorSystem,
		Details:   details,
	}
}

// Job is one uploaded document under compliance review.
// ID, TenantID and DocumentReference never change after creation.
type Job struct {
	ID                uuid.UUID       `db:"id"                 json:"job_id"`
	TenantID          string          `db:"tenant_id"          json:"tenant_id"`
	Status            JobStatus       `db:"status"             json:"status"`
	DocumentReference string          `db:"document_reference" json:"document_reference"`
	ModelVersion      string          `db:"model_version"      json:"model_version,omitempty"`
	AuditTrail        []AuditEntry    `json:"audit_trail"`
	Findings          []ClauseFinding `json:"findings,omitempty"`
	CreatedAt         time.Time       `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"         json:"updated_at"`
}
