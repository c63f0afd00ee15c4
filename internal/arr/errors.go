package arr

import (
	"fmt"
)

// TransportError means the request never produced an HTTP response, or the
// response body could not be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the API.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// DecodeError means the response body did not have the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
