// Package models provides data model definitions for the fieldsync agent.
package models

import "time"

// SubmissionKind distinguishes whole-job offline submissions.
type SubmissionKind string

const (
	SubmissionCollection SubmissionKind = "collection"
	SubmissionDelivery   SubmissionKind = "delivery"
)

// IsValid reports whether k is a known submission kind.
func (k SubmissionKind) IsValid() bool {
	return k == SubmissionCollection || k == SubmissionDelivery
}

// JobSubmission records a whole job created while offline. It is tracked
// separately from generic queue items so the driver dashboard can list
// which jobs are still waiting to reach the back office.
type JobSubmission struct {
	ID        UUID           `db:"id" json:"id"`
	JobID     string         `db:"job_id" json:"job_id"`
	Kind      SubmissionKind `db:"kind" json:"kind"`
	Synced    bool           `db:"synced" json:"synced"`
	CreatedAt int64          `db:"created_at" json:"created_at"`
}

// TableName returns the table name for JobSubmission.
func (JobSubmission) TableName() string {
	return "job_submissions"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (j *JobSubmission) CreatedAtTime() time.Time {
	return time.Unix(j.CreatedAt, 0)
}
