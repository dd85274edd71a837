package model

import "time"

// Artifact is one append-only record of a stage handler's durable output.
// Readers take the latest row per (submission_id, stage) ordered by
// created_at then id.
type Artifact struct {
	ID            int64
	SubmissionID  string
	Stage         string
	Bucket        string
	ObjectKey     string
	SchemaVersion int
	CreatedAt     time.Time
}

// Evaluation is the at-most-one scored result of the evaluate stage.
type Evaluation struct {
	SubmissionID           string
	Score                  *float64
	CriterionScores        []byte // raw JSON
	Feedback               []byte // raw JSON
	AIAssistanceLikelihood *float64
	Confidence             *float64
	Seed                   *int64
	Temperature            *float64
	ChainVersion           *string
	PromptVersion          *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// LLMRun is one append-only audit record of a call made to the LLM during
// the evaluate stage. The column set carries prompt_version,
// rubric_version and result_schema_version plus response_language; there
// is no spec_version column. See DESIGN.md.
type LLMRun struct {
	ID                  int64
	SubmissionID        string
	Stage               string
	Provider            string
	Model               string
	ModelVersion        *string
	PromptVersion       *string
	RubricVersion       *string
	ResultSchemaVersion *string
	ResponseLanguage    *string
	PromptTokens        *int
	CompletionTokens    *int
	LatencyMs           *int
	CreatedAt           time.Time
}

// Delivery is one append-only record of a delivery attempt to the
// candidate-facing channel.
type Delivery struct {
	ID                 int64
	SubmissionID       string
	Channel            string
	ExternalMessageID  *string
	CreatedAt          time.Time
}
