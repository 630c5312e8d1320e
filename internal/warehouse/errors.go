package warehouse

import (
	"context"
	"errors"
)

// QueryError is the single failure a warehouse call can produce:
// connectivity, malformed SQL, or timeout. There are no retries
// and no partial results.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return "warehouse " + e.Op + ": " + e.Err.Error()
}

func (e *QueryError) Unwrap() error { return e.Err }

// Timeout reports whether the query hit its deadline.
func (e *QueryError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsTimeout reports whether err is a warehouse query timeout.
func IsTimeout(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Timeout()
}
