package publisher

import "fmt"

// Stage names a step of a publish run.
type Stage string

// Stages in execution order.
const (
	StageReadVersion    Stage = "read-version"
	StageBump           Stage = "bump"
	StageRewriteEntry   Stage = "rewrite-entry-file"
	StageBuildArchive   Stage = "build-archive"
	StageUpdateMetadata Stage = "update-metadata"
	StageUploadArchive  Stage = "upload-archive"
	StageUploadMetadata Stage = "upload-metadata"
	StageDone           Stage = "done"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{
		StageReadVersion,
		StageBump,
		StageRewriteEntry,
		StageBuildArchive,
		StageUpdateMetadata,
		StageUploadArchive,
		StageUploadMetadata,
		StageDone,
	}
}

// StageError reports the stage at which a run stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
