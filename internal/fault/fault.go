// Package fault defines the closed set of error kinds the pipeline uses to tell
// retryable infrastructure failures apart from bad input and model failures.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	// KindUnknown is reported for errors that carry no fault classification.
	KindUnknown Kind = "unknown"
	// KindUnavailable indicates a collaborator (storage, inspector, model) could not be reached.
	KindUnavailable Kind = "unavailable"
	// KindInvalid indicates malformed input: bad references, undecodable payloads, unsupported formats.
	KindInvalid Kind = "invalid"
	// KindModelFailure indicates a model answered but the answer was unusable.
	KindModelFailure Kind = "model_failure"
)

// Error carries a Kind alongside the operation that failed and its cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable wraps err as a KindUnavailable error.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

// Invalid wraps err as a KindInvalid error.
func Invalid(op string, err error) error {
	return &Error{Kind: KindInvalid, Op: op, Err: err}
}

// ModelFailure wraps err as a KindModelFailure error.
func ModelFailure(op string, err error) error {
	return &Error{Kind: KindModelFailure, Op: op, Err: err}
}

// KindOf returns the kind of the outermost fault.Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a redelivery could plausibly succeed.
func Retryable(err error) bool {
	return Is(err, KindUnavailable)
}
