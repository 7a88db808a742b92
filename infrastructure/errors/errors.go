// Package errors classifies failures the way spec.md §7 requires, so the
// broker adapter and phase machine can decide retry vs. DLQ vs. job-failure
// without string sniffing.
package errors

import "errors"

// Class identifies the error taxonomy a failure belongs to.
type Class int

const (
	// ClassTransient covers broker disconnects, storage timeouts, model
	// inference timeouts. Policy: retry with backoff; after threshold, DLQ.
	ClassTransient Class = iota
	// ClassSchemaViolation covers payloads that fail validation. Policy:
	// DLQ immediately, never retry.
	ClassSchemaViolation
	// ClassIdempotencyConflict covers a duplicate event_id. Policy: ack
	// silently, do nothing.
	ClassIdempotencyConflict
	// ClassUnrecoverable covers repeated non-transient failure on a
	// specific job. Policy: mark the job failed, stop publishing for it.
	ClassUnrecoverable
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassSchemaViolation:
		return "schema_violation"
	case ClassIdempotencyConflict:
		return "idempotency_conflict"
	case ClassUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its handling class.
type Classified struct {
	Class Class
	Err   error
}

func (c *Classified) Error() string { return c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Transient wraps err as a retriable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Class: ClassTransient, Err: err}
}

// SchemaViolation wraps err as a fatal, non-retriable validation failure.
func SchemaViolation(err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Class: ClassSchemaViolation, Err: err}
}

// IdempotencyConflict wraps err (usually nil-ish informational) as a
// duplicate-delivery short-circuit.
func IdempotencyConflict(err error) error {
	if err == nil {
		err = errors.New("duplicate event")
	}
	return &Classified{Class: ClassIdempotencyConflict, Err: err}
}

// Unrecoverable wraps err as a job-ending failure.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Class: ClassUnrecoverable, Err: err}
}

// ClassOf inspects err and returns its Class, defaulting to ClassTransient
// for plain errors so unclassified failures still retry rather than DLQ
// immediately.
func ClassOf(err error) Class {
	var c *Classified
	if errors.As(err, &c) {
		return c.Class
	}
	return ClassTransient
}

// IsRetriable reports whether err should be retried with backoff.
func IsRetriable(err error) bool {
	return ClassOf(err) == ClassTransient
}
