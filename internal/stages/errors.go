package stages

import "errors"

// errSchemaMismatch is returned when an artifact's schema_version is
// unrecognized under the strict compat policy; handlers map it to
// scheduler.ErrorKindPermanentBadInput.
var errSchemaMismatch = errors.New("stages: artifact schema version mismatch")

// ErrMissingInputArtifact is returned when a stage's prerequisite artifact
// is absent — a configuration/ordering bug, not a transient condition.
var ErrMissingInputArtifact = errors.New("stages: missing input artifact")
