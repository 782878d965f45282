package jobx

import (
	"errors"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
)

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound     = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrUnknownQueue    = jobxErrors.Register("UNKNOWN_QUEUE", errx.TypeValidation, 400, "Unknown queue")
	ErrInvalidJob      = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrInvalidPayload  = jobxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Job payload could not be encoded or decoded")
	ErrInvalidBackoff  = jobxErrors.Register("INVALID_BACKOFF", errx.TypeValidation, 400, "Invalid backoff policy")
	ErrInvalidQueue    = jobxErrors.Register("INVALID_QUEUE_CONFIG", errx.TypeValidation, 400, "Invalid queue configuration")
	ErrInvalidState    = jobxErrors.Register("INVALID_STATE", errx.TypeConflict, 409, "Operation not allowed in the job's current state")
	ErrInvalidSchedule = jobxErrors.Register("INVALID_SCHEDULE", errx.TypeValidation, 400, "Invalid schedule")
	ErrDuplicateJob    = jobxErrors.Register("DUPLICATE_JOB", errx.TypeConflict, 409, "A job with this ID already exists")
	ErrLeaseLost       = jobxErrors.Register("LEASE_LOST", errx.TypeConflict, 409, "Job lease is no longer held by this worker")
	ErrNoHandler       = jobxErrors.Register("NO_HANDLER", errx.TypeValidation, 400, "No handler registered for job name")
	ErrHandlerTimeout  = jobxErrors.Register("HANDLER_TIMEOUT", errx.TypeInternal, 500, "Job handler timed out")
	ErrHandlerPanic    = jobxErrors.Register("HANDLER_PANIC", errx.TypeInternal, 500, "Job handler panicked")
	ErrStalledLimit    = jobxErrors.Register("STALLED_LIMIT", errx.TypeInternal, 500, "job stalled more than allowable limit")
	ErrAlreadyRunning  = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Queue engine is already running")
)

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errx.IsType(err, errx.TypeNotFound)
}

// IsLeaseLost reports whether err means the caller no longer owns the job.
func IsLeaseLost(err error) bool {
	return errx.IsCode(err, ErrLeaseLost.Code)
}

// IsDuplicate reports whether err is a duplicate job ID rejection.
func IsDuplicate(err error) bool {
	return errx.IsCode(err, ErrDuplicateJob.Code)
}

// IsTransient reports whether err comes from the backing store being unavailable.
// Such errors are retried locally and never recorded as job failures.
func IsTransient(err error) bool {
	return errx.IsType(err, errx.TypeExternal)
}

// permanentError marks a handler error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the job fails immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent or means no
// handler can ever run the job.
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	return errx.IsCode(err, ErrNoHandler.Code)
}

// Error exposes the registry so backends can build engine errors.
func Error(code *errx.ErrorCode) *errx.Error {
	return jobxErrors.New(code)
}
