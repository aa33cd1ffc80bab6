package xrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-success XRPC response.
type Error struct {
	URL     string
	Status  int
	Code    string // the "error" field of the body, e.g. "RecordNotFound"
	Message string
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("xrpc: %d %s: %s", e.Status, code, e.Message)
	}
	return fmt.Sprintf("xrpc: %d %s", e.Status, code)
}

func newError(u string, status int, body []byte) *Error {
	e := &Error{URL: u, Status: status}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code, e.Message = payload.Error, payload.Message
	}
	return e
}

// IsNotFound reports whether err means the record or repository does not
// exist.
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case "RecordNotFound", "RepoNotFound", "NotFound":
		return true
	}
	// getRecord reports a missing record as 400 RecordNotFound; plain 404s
	// come from proxies and older servers.
	return e.Status == http.StatusNotFound
}
