package chronograph

import (
	"errors"
	"fmt"
)

// Stage names the pipeline state an episode is in when an error occurs.
type Stage string

const (
	StageReceived     Stage = "received"
	StageExtracting   Stage = "extracting"
	StageResolving    Stage = "resolving"
	StageInvalidating Stage = "invalidating"
	StagePersisted    Stage = "persisted"
	StageFailed       Stage = "failed"
)

// ErrorKind classifies pipeline failures for callers that branch on
// cause rather than message.
type ErrorKind string

const (
	// KindInvalidNamespace rejects a malformed group id.
	KindInvalidNamespace ErrorKind = "invalid_namespace"
	// KindInvalidEpisode rejects a malformed episode body.
	KindInvalidEpisode ErrorKind = "invalid_episode"
	// KindCapabilityUnavailable marks exhaustion of a required model
	// capability after retries.
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
	// KindStoreUnavailable marks a persistence failure; nothing from the
	// episode was written.
	KindStoreUnavailable ErrorKind = "store_unavailable"
)

// PipelineError wraps a failure with the stage it interrupted and its
// classification. The episode itself is untouched in the store: the
// pipeline persists all-or-nothing.
type PipelineError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func pipelineErr(stage Stage, kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: kind, Err: err}
}

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("chronograph: client closed")
