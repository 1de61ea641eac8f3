package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Transient fetch errors are absorbed by the retry loop;
// record-level errors are isolated to the record; the rest propagate.
var (
	ErrNetworkUnreachable = errors.New("feed unreachable")
	ErrMalformedPayload   = errors.New("malformed feed payload")
	ErrUnknownVariable    = errors.New("unknown variable name")
	ErrInvalidValue       = errors.New("non-numeric reading")
	ErrInvalidCoordinate  = errors.New("invalid station coordinate")
	ErrStoreIntegrity     = errors.New("store integrity violation")
	ErrSerialization      = errors.New("serialization failure")
	ErrEscalated          = errors.New("retry ceiling reached")
)

// RecordError reports a single rejected reading (or, for an unknown variable,
// a whole series) with enough context to find it in the feed.
type RecordError struct {
	StationID string
	Variable  string
	Timestamp string // empty when the whole series was rejected
	Err       error
}

func (e *RecordError) Error() string {
	if e.Timestamp == "" {
		return fmt.Sprintf("station %s variable %q: %v", e.StationID, e.Variable, e.Err)
	}
	return fmt.Sprintf("station %s variable %q at %s: %v", e.StationID, e.Variable, e.Timestamp, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
