package domain

import "errors"

// Outcome classifies one feed retrieval attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUnreachable
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// OutcomeOf maps a fetch error to its Outcome. Anything not recognised as a
// payload problem counts as unreachable.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrMalformedPayload):
		return OutcomeMalformed
	default:
		return OutcomeUnreachable
	}
}
