package upstream

import "fmt"

// TransientError covers network-level failures and 5xx responses. These are
// retried with bounded backoff before surfacing; a cached previous value
// stays visible to readers while they are.
type TransientError struct {
	Status int // 0 for transport-level failures
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("hr api transient failure (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("hr api unreachable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError covers 4xx responses. These indicate a caller or request
// error, are never retried, and carry the server-provided message when the
// response body had one.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("hr api rejected request (status %d): %s", e.Status, e.Message)
}
