package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidIdentifier is returned for identifiers that cannot be turned
// into a request URL (e.g. a did:web without a host).
var ErrInvalidIdentifier = errors.New("identity: invalid identifier")

// TransportError reports a failed network call: the request could not be
// made, or the server answered with a non-success status.
type TransportError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("identity: GET %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("identity: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a TransportError with the given status.
func IsStatus(err error, status int) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == status
}
