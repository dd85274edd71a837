// Package model holds the domain types shared by the repository, scheduler,
// and stage handler packages.
package model

import "time"

// Status is the submission's position in the telegram_ingest -> normalize
// -> evaluate -> deliver pipeline.
type Status string

const (
	StatusTelegramUpdateReceived    Status = "telegram_update_received"
	StatusTelegramIngestInProgress  Status = "telegram_ingest_in_progress"
	StatusUploaded                  Status = "uploaded"
	StatusNormalizationInProgress   Status = "normalization_in_progress"
	StatusNormalized                Status = "normalized"
	StatusEvaluationInProgress      Status = "evaluation_in_progress"
	StatusEvaluated                 Status = "evaluated"
	StatusDeliveryInProgress        Status = "delivery_in_progress"
	StatusDelivered                 Status = "delivered"
	StatusFailedTelegramIngest      Status = "failed_telegram_ingest"
	StatusFailedNormalization       Status = "failed_normalization"
	StatusFailedEvaluation          Status = "failed_evaluation"
	StatusFailedDelivery            Status = "failed_delivery"
	StatusDeadLetter                Status = "dead_letter"
)

// Submission is the aggregate root driven through the pipeline by the
// scheduler. Claimed-by/claimed-at/lease-expires-at are either all nil or
// all set; see the database CHECK constraint of the same name.
type Submission struct {
	ID           string
	PublicID     string
	CandidateID  string
	AssignmentID string
	Status       Status

	AttemptTelegramIngest int
	AttemptNormalization  int
	AttemptEvaluation     int
	AttemptDelivery       int

	ClaimedBy      *string
	ClaimedAt      *time.Time
	LeaseExpiresAt *time.Time

	LastErrorCode    *string
	LastErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsClaimed reports whether the submission currently has a live lease.
func (s Submission) IsClaimed() bool {
	return s.ClaimedBy != nil
}

// Candidate is a person being evaluated.
type Candidate struct {
	ID        string
	PublicID  string
	FullName  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment is a task candidates submit work against.
type Assignment struct {
	ID        string
	PublicID  string
	Title     string
	Rubric    []byte // raw JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CandidateSource links a candidate to an external identity, e.g. a
// Telegram chat id, so repeated webhook updates resolve to one candidate.
type CandidateSource struct {
	ID               string
	CandidateID      string
	SourceType       string
	SourceExternalID string
	CreatedAt        time.Time
}

// SubmissionSource links a submission to the external event that created
// it (e.g. a Telegram update_id), giving webhook intake idempotency.
type SubmissionSource struct {
	ID               string
	SubmissionID     string
	SourceType       string
	SourceExternalID string
	CreatedAt        time.Time
}
