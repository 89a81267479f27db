package pipeline

import "errors"

// Sentinel errors reported by the pipeline and its stages.
var (
	// ErrPipelineClosed is returned when work is offered after Complete or Cancel.
	ErrPipelineClosed = errors.New("pipeline closed")
	// ErrCanceled is the cancellation cause raised by Cancel.
	ErrCanceled = errors.New("pipeline canceled")
	// ErrThrottleWait wraps a cancelled wait on the load throttle.
	ErrThrottleWait = errors.New("load throttle wait aborted")
	// ErrFetchAspects wraps a media index failure.
	ErrFetchAspects = errors.New("fetch aspects")
	// ErrStagePanic is reported when a stage loop panics outside of an action.
	ErrStagePanic = errors.New("stage panicked")
	// ErrNilAction is returned by Submit-style entry points for a nil action.
	ErrNilAction = errors.New("nil action")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid pipeline config")
	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("missing pipeline dependency")
)
