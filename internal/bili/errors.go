package bili

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginRequired indicates the endpoint needs an authenticated
	// session and none is configured.
	ErrLoginRequired = errors.New("login required")
)

// RemoteServiceError is a business-level failure returned by the platform:
// the HTTP exchange succeeded but the envelope carried a non-zero code.
type RemoteServiceError struct {
	Code int
	Msg  string
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("remote service error %d: %s", e.Code, e.Msg)
}
