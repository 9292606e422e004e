package domain

import "time"

// JobStatus is owned by the moderation gate; nothing else writes it.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobActive  JobStatus = "active"
	JobFlagged JobStatus = "flagged"
	JobClosed  JobStatus = "closed"
)

type Job struct {
	JobID      string    `json:"id" dynamodbav:"job_id"`
	EmployerID string    `json:"employer_id" dynamodbav:"employer_id"`
	Title      string    `json:"title" dynamodbav:"title"`
	Status     JobStatus `json:"status" dynamodbav:"status"`
	FlagCount  int       `json:"flag_count" dynamodbav:"flag_count"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateJobRequest struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
}

// FlagReport is one community report against a job. Append-only.
// PK: job_id, SK: report_id.
type FlagReport struct {
	JobID      string    `json:"job_id" dynamodbav:"job_id"`
	ReportID   string    `json:"id" dynamodbav:"report_id"`
	ReporterID string    `json:"reporter_id" dynamodbav:"reporter_id"`
	Reason     string    `json:"reason" dynamodbav:"reason"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
}

type FlagJobRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=1000"`
}

// Decision is an admin's resolution of a flagged job.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionRemove  Decision = "remove"
)

// ParseDecision validates a decision value from a request body.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove, DecisionRemove:
		return Decision(s), nil
	}
	return "", ErrInvalidDecision
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve remove"`
}

type ApproveEmployerRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}
