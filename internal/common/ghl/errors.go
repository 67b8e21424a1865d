package ghl

import (
	"errors"
	"fmt"
)

// TransientError is a timeout or connection failure; the request may not have
// reached the CRM.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("ghl %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RejectedError is a response outside the accepted status codes, or a 2xx
// response whose body could not be read as the expected envelope.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ghl %s: invalid response (status_code=%d, data=%s)", e.Op, e.StatusCode, e.Body)
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}
