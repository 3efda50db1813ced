package orderworker

import "errors"

var (
	// ErrMalformedPayload marks a message that can never be decoded. It is dropped, not retried.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrRetryExhausted marks a message that failed on its last allowed attempt.
	ErrRetryExhausted = errors.New("retry exhausted")
)

// MalformedError describes which part of the payload could not be resolved.
type MalformedError struct {
	Reason string
	Err    error
}

// Error returns the reason with the wrapped error, if any.
func (e *MalformedError) Error() string {
	if e.Err != nil {
		return "malformed payload: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed payload: " + e.Reason
}

// Is reports true for ErrMalformedPayload.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// Unwrap returns the wrapped error.
func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(reason string, err error) error {
	return &MalformedError{Reason: reason, Err: err}
}

// Outcome is what happens to a delivery after one attempt.
type Outcome int

const (
	OutcomeAck   Outcome = iota // handled or duplicate
	OutcomeDrop                 // permanently invalid, acked without dead-lettering
	OutcomeRetry                // transient, escalated to the retry path
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeDrop:
		return "drop"
	default:
		return "retry"
	}
}

// Classify maps an attempt's error to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrMalformedPayload):
		return OutcomeDrop
	default:
		return OutcomeRetry
	}
}
