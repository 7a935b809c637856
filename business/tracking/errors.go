package tracking

import (
	"errors"
	"fmt"
)

// ErrInvalidReport is returned for position reports that fail validation at the boundary
var ErrInvalidReport = errors.New("invalid position report")

//PersistenceError is returned when a position sample could not be stored. It's the only failure the ingestion
//pipeline surfaces to callers, everything after the history write is best effort
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError returns true if err or anything it wraps is a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
