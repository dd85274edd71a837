package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// ArtifactBucket holds every stage artifact for this pipeline; objects are
// content-addressed, so the bucket doubles as a dedup namespace.
const ArtifactBucket = "submissions"

// readLatestJSON fetches the newest artifact for stage on submissionID and
// decodes it into out. It tries each candidate stage name in order,
// returning the first that resolves — used where a submission's prior
// artifact may have been produced under one of several possible source
// stages (e.g. direct upload vs. Telegram intake).
func readLatestJSON(ctx context.Context, deps Deps, submissionID string, out any, candidateStages ...model.Stage) error {
	for _, stage := range candidateStages {
		artifact, err := deps.Repo.LatestArtifact(ctx, submissionID, stage)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return fmt.Errorf("reading %s artifact: %w", stage, err)
		}
		if err := deps.checkSchemaVersion(artifact.SchemaVersion); err != nil {
			return fmt.Errorf("%s artifact: %w", stage, err)
		}
		data, err := deps.Artifacts.Get(ctx, artifact.Bucket, artifact.ObjectKey)
		if err != nil {
			return fmt.Errorf("fetching %s artifact body: %w", stage, err)
		}
		return json.Unmarshal(data, out)
	}
	return ErrMissingInputArtifact
}

// writeJSONArtifact content-addresses v into the artifact store and
// returns the ArtifactRef the worker loop should link. Writing the same
// value twice (handler re-execution after crash) yields the same object
// key, so duplicate artifact rows are harmless per the store's
// latest-wins-on-read semantics.
func writeJSONArtifact(ctx context.Context, store objectstore.Store, v any) (*scheduler.ArtifactRef, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}
	key, err := store.Put(ctx, ArtifactBucket, data)
	if err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}
	return &scheduler.ArtifactRef{Bucket: ArtifactBucket, ObjectKey: key, SchemaVersion: schemaVersionV1}, nil
}
