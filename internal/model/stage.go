package model

// Stage identifies one of the four pipeline stages a worker role processes.
// The four stages differ only by their (pre, in-progress, success, failure)
// status tuple and attempt counter; this is modeled as a table of
// descriptors parameterizing one generic loop, never as per-stage
// inheritance or runtime string interpolation of column/status names.
type Stage string

const (
	StageTelegramIngest Stage = "telegram_ingest"
	StageNormalize      Stage = "normalize"
	StageEvaluate       Stage = "evaluate"
	StageDeliver        Stage = "deliver"
)

// StageDescriptor captures the status tuple a stage advances through; the
// attempt counter column is not part of it. It is metadata only: the
// repository package selects
// its precompiled SQL for a stage with a compile-time switch, never by
// substituting a column name from this struct into a query string.
type StageDescriptor struct {
	Stage        Stage
	PreStatus    Status
	InProgress   Status
	SuccessState Status
	FailState    Status
}

var stageDescriptors = map[Stage]StageDescriptor{
	StageTelegramIngest: {
		Stage:        StageTelegramIngest,
		PreStatus:    StatusTelegramUpdateReceived,
		InProgress:   StatusTelegramIngestInProgress,
		SuccessState: StatusUploaded,
		FailState:    StatusFailedTelegramIngest,
	},
	StageNormalize: {
		Stage:        StageNormalize,
		PreStatus:    StatusUploaded,
		InProgress:   StatusNormalizationInProgress,
		SuccessState: StatusNormalized,
		FailState:    StatusFailedNormalization,
	},
	StageEvaluate: {
		Stage:        StageEvaluate,
		PreStatus:    StatusNormalized,
		InProgress:   StatusEvaluationInProgress,
		SuccessState: StatusEvaluated,
		FailState:    StatusFailedEvaluation,
	},
	StageDeliver: {
		Stage:        StageDeliver,
		PreStatus:    StatusEvaluated,
		InProgress:   StatusDeliveryInProgress,
		SuccessState: StatusDelivered,
		FailState:    StatusFailedDelivery,
	},
}

// Describe returns the status tuple for a stage. ok is false for an
// unrecognized stage value.
func Describe(s Stage) (StageDescriptor, bool) {
	d, ok := stageDescriptors[s]
	return d, ok
}

// Stages lists all four stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageTelegramIngest, StageNormalize, StageEvaluate, StageDeliver}
}
